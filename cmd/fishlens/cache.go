package main

import (
	"fmt"

	"github.com/spf13/cobra"

	cachepkg "github.com/fishlens/fishlens/pkg/cache/sqlite"
	"github.com/fishlens/fishlens/pkg/models"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the persisted result cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cleanup, err := openStore()
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := c.Stats()
			if err != nil {
				return err
			}
			fmt.Printf("Entries:    %d\n", stats.Entries)
			for _, k := range models.AllKinds {
				fmt.Printf("  %-9s %d\n", k+":", stats.ByKind[k])
			}
			fmt.Printf("Total hits: %d\n", stats.TotalHits)
			return nil
		},
	}

	var listKind string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List cached entries, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cleanup, err := openStore()
			if err != nil {
				return err
			}
			defer cleanup()

			entries, err := c.LoadAll()
			if err != nil {
				return err
			}
			if listKind != "" {
				kind, err := models.ParseAnalysisKind(listKind)
				if err != nil {
					return err
				}
				kept := entries[:0]
				for _, e := range entries {
					if e.Kind == kind {
						kept = append(kept, e)
					}
				}
				entries = kept
			}
			fmt.Print(formatEntries(entries))
			return nil
		},
	}
	listCmd.Flags().StringVarP(&listKind, "kind", "k", "", "only list entries of this kind")

	var forgetKind string
	forgetCmd := &cobra.Command{
		Use:   "forget <fingerprint>",
		Short: "Drop one cached analysis so the next request asks the model again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			fp, err := models.ParseFingerprint(args[0])
			if err != nil {
				return err
			}
			kind, err := models.ParseAnalysisKind(forgetKind)
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

			forgot := a.engine.Forget(fp, kind)
			if a.store != nil {
				stored, err := a.store.Delete(models.CacheKey{Fingerprint: fp, Kind: kind})
				if err != nil {
					return err
				}
				forgot = forgot || stored
			}
			if forgot {
				fmt.Printf("Forgot %s/%s.\n", fp, kind)
			} else {
				fmt.Printf("No cached entry for %s/%s.\n", fp, kind)
			}
			return nil
		},
	}
	forgetCmd.Flags().StringVarP(&forgetKind, "kind", "k", "both", "analysis kind of the entry")

	var showKind string
	showCmd := &cobra.Command{
		Use:   "show <fingerprint>",
		Short: "Show one persisted cache entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fp, err := models.ParseFingerprint(args[0])
			if err != nil {
				return err
			}
			kind, err := models.ParseAnalysisKind(showKind)
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
			c, cleanup, err := openStore()
			if err != nil {
				return err
			}
			defer cleanup()

			e, ok, err := c.Get(models.CacheKey{Fingerprint: fp, Kind: kind})
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no cached entry for %s/%s", fp, kind)
			}
			fmt.Printf("Fingerprint: %s\n", e.Fingerprint)
			fmt.Printf("Kind:        %s\n", e.Kind)
			fmt.Printf("Created:     %s\n", e.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			fmt.Printf("Hits:        %d\n\n", e.HitCount)
			fmt.Print(norm.Serialize(e.Result))
			fmt.Print(formatConfidence(e.Confidence, e.Report))
			return nil
		},
	}
	showCmd.Flags().StringVarP(&showKind, "kind", "k", "both", "analysis kind of the entry")

	var expiredOnly bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cleanup, err := openStore()
			if err != nil {
				return err
			}
			defer cleanup()

			n, err := c.Clear(expiredOnly)
			if err != nil {
				return err
			}
			if expiredOnly {
				fmt.Printf("Cleared %d expired cache entries.\n", n)
			} else {
				fmt.Printf("Cleared %d cache entries.\n", n)
			}
			return nil
		},
	}
	clearCmd.Flags().BoolVar(&expiredOnly, "expired", false, "only clear expired entries")

	cmd.AddCommand(statsCmd, listCmd, showCmd, forgetCmd, clearCmd)
	return cmd
}

func openStore() (*cachepkg.Store, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	c, err := cachepkg.New(cfg.DBPath, cfg.Engine.TTL())
	if err != nil {
		return nil, nil, err
	}
	return c, func() { _ = c.Close() }, nil
}
