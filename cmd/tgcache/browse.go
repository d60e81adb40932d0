package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/danhigham/tgcache/internal/ui"
)

func init() {
	rootCmd.AddCommand(browseCmd)
}

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse cached entities in a terminal UI",
	Long:  "Open an interactive browser over every cached account, group, channel and secret chat. The view refreshes as the cache changes.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(true)
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx := cmd.Context()
		s, err := openSession(ctx, cfg, logger)
		if err != nil {
			return err
		}
		sub := s.hub.Subscribe()
		defer sub.Close()

		needLogin := !s.hasSession()
		return s.run(ctx, s.syncContacts, func(ctx context.Context) error {
			if needLogin {
				fmt.Fprintln(os.Stderr, "Logging in...")
				if err := s.waitAuthorized(ctx); err != nil {
					return err
				}
			}
			return ui.NewApp(ctx, s.cache, sub).Run(ctx)
		})
	},
}
