package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fishlens/fishlens/pkg/audit"
	"github.com/fishlens/fishlens/pkg/engine"
	"github.com/fishlens/fishlens/pkg/models"
)

func newAnalyzeCmd() *cobra.Command {
	var (
		kindFlag string
		rawPath  string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "analyze <image>",
		Short: "Analyze an image, reusing the cached result when the image was seen before",
		Long: `Analyze fingerprints the image and returns the cached analysis on an exact hit.
On a miss the model is asked once: either the text in --raw (a file, or - for
stdin) or the command configured under model.command. Its answer is normalized,
validated, scored and cached.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			kind, err := models.ParseAnalysisKind(kindFlag)
			if err != nil {
				return err
			}
			if rawPath == "-" && args[0] == "-" {
				return fmt.Errorf("image and --raw cannot both read stdin")
			}
			image, err := readInput(args[0])
			if err != nil {
				return err
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer func() {
				if cerr := a.Close(); err == nil {
					err = cerr
				}
			}()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			norm := a.engine.Normalizer()
			res, err := a.engine.Analyze(ctx, image, kind, selectModel(a.cfg, rawPath))
			switch {
			case errors.Is(err, engine.ErrNoRecognizableContent):
				a.record(ctx, audit.Rejected("cli", norm.VocabularyVersion(), res.Fingerprint, kind, res.Raw, err))
				return err
			case err != nil:
				return err
			}

			if res.Reused {
				a.record(ctx, audit.Reused("cli", models.CacheEntry{
					Fingerprint: res.Fingerprint,
					Kind:        kind,
					Confidence:  res.Confidence,
					Report:      res.Report,
				}))
			} else {
				a.record(ctx, audit.Finalized("cli", norm.VocabularyVersion(), res.Fingerprint, kind, res.Raw,
					norm.Serialize(res.Result), res.Confidence, res.Report))
			}

			if asJSON {
				return printJSON(res)
			}

			fmt.Printf("Fingerprint: %s\n", res.Fingerprint)
			if res.Reused {
				fmt.Printf("Source: cache (hits: %d)\n", res.HitCount)
			} else {
				fmt.Println("Source: model")
				fmt.Print(formatMatches(res.Matches))
			}
			fmt.Println()
			fmt.Print(norm.Serialize(res.Result))
			fmt.Print(formatConfidence(res.Confidence, res.Report))
			return nil
		},
	}

	cmd.Flags().StringVarP(&kindFlag, "kind", "k", "both", "analysis kind: species, freshness or both")
	cmd.Flags().StringVar(&rawPath, "raw", "", "file holding the model's answer (- for stdin)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the analysis as JSON")
	return cmd
}
