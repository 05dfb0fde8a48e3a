package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fishlens/fishlens/pkg/fingerprint"
	"github.com/fishlens/fishlens/pkg/models"
)

func newFingerprintCmd() *cobra.Command {
	var compare bool

	cmd := &cobra.Command{
		Use:   "fingerprint <image>...",
		Short: "Print the perceptual fingerprint of one or more images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if compare && len(args) != 2 {
				return fmt.Errorf("--compare needs exactly two images")
			}

			fps, err := fingerprintFiles(args)
			if err != nil {
				return err
			}

			if compare {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				d := fps[0].Distance(fps[1])
				verdict := "different"
				if fingerprint.Similar(fps[0], fps[1], cfg.Engine.SimilarityThreshold) {
					verdict = "similar"
				}
				fmt.Printf("distance %d/%d (%s, threshold %d)\n",
					d, models.FingerprintBits, verdict, cfg.Engine.SimilarityThreshold)
				return nil
			}

			for i, fp := range fps {
				fmt.Printf("%s  %s\n", fp, args[i])
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&compare, "compare", false, "report the distance between two images")
	return cmd
}

// fingerprintFiles decodes and fingerprints the files concurrently, keeping
// the argument order.
func fingerprintFiles(paths []string) ([]models.Fingerprint, error) {
	fps := make([]models.Fingerprint, len(paths))
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i, path := range paths {
		g.Go(func() error {
			data, err := readInput(path)
			if err != nil {
				return err
			}
			fp, err := fingerprint.Compute(data)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			fps[i] = fp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return fps, nil
}
