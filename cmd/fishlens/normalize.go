package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fishlens/fishlens/pkg/confidence"
	"github.com/fishlens/fishlens/pkg/engine"
	"github.com/fishlens/fishlens/pkg/models"
	"github.com/fishlens/fishlens/pkg/validate"
)

func newNormalizeCmd() *cobra.Command {
	var (
		kindFlag string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "normalize [file]",
		Short: "Normalize, validate and score model output without touching the cache",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := models.ParseAnalysisKind(kindFlag)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			norm, err := loadNormalizer(cfg)
			if err != nil {
				return err
			}

			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			raw, err := readInput(path)
			if err != nil {
				return err
			}

			result, err := norm.Normalize(string(raw), kind)
			if err != nil {
				return err
			}
			report := validate.Validate(result, kind)
			score := confidence.Score(result, report)

			if asJSON {
				return printJSON(engine.FinalizeResult{Result: result, Confidence: score, Report: report})
			}
			fmt.Print(norm.Serialize(result))
			fmt.Println()
			fmt.Print(formatConfidence(score, report))
			return nil
		},
	}

	cmd.Flags().StringVarP(&kindFlag, "kind", "k", "both", "analysis kind: species, freshness or both")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the normalized result as JSON")
	return cmd
}
