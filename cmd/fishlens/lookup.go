package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fishlens/fishlens/pkg/audit"
	"github.com/fishlens/fishlens/pkg/engine"
	"github.com/fishlens/fishlens/pkg/models"
)

func newLookupCmd() *cobra.Command {
	var (
		kindFlag string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "lookup <image|fingerprint>",
		Short: "Check the result cache for an image without calling the model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			kind, err := models.ParseAnalysisKind(kindFlag)
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

			fp, err := models.ParseFingerprint(args[0])
			if err != nil {
				data, rerr := readInput(args[0])
				if rerr != nil {
					return rerr
				}
				if fp, err = a.engine.Fingerprint(data); err != nil {
					return err
				}
			}

			lr := a.engine.Lookup(fp, kind)
			if lr.Entry != nil {
				a.record(cmd.Context(), audit.Reused("cli", *lr.Entry))
			}
			if asJSON {
				return printJSON(lr)
			}

			fmt.Printf("Fingerprint: %s\n", fp)
			switch lr.Outcome {
			case engine.OutcomeExactHit:
				fmt.Printf("Exact hit (hits: %d)\n\n", lr.Entry.HitCount)
				fmt.Print(a.engine.Normalizer().Serialize(lr.Entry.Result))
				fmt.Print(formatConfidence(lr.Entry.Confidence, lr.Entry.Report))
			case engine.OutcomeSimilarMatches:
				fmt.Println("Miss")
				fmt.Print(formatMatches(lr.Matches))
			default:
				fmt.Println("Miss")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&kindFlag, "kind", "k", "both", "analysis kind: species, freshness or both")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the lookup result as JSON")
	return cmd
}
