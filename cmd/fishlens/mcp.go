package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fishlens/fishlens/pkg/mcp"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the engine as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer func() {
				if cerr := a.Close(); err == nil {
					err = cerr
				}
			}()

			var auditor mcp.Auditor
			if a.auditor != nil {
				auditor = a.auditor
			}
			srv := mcp.New(a.engine, auditor, version)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Printf("mcp: serving fishlens %s on stdio", version)
			return srv.Run(ctx, os.Stdin, os.Stdout)
		},
	}
}
