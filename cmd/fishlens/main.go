package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	configPath string
	verbose    bool
)

func main() {
	root := &cobra.Command{
		Use:           "fishlens",
		Short:         "Consistent fish species and freshness analysis from vision model output",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to fishlens config file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log engine decisions to stderr")

	root.AddCommand(
		newFingerprintCmd(),
		newLookupCmd(),
		newAnalyzeCmd(),
		newNormalizeCmd(),
		newCacheCmd(),
		newAuditCmd(),
		newMCPCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
