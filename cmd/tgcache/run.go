package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danhigham/tgcache/internal/notify"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Keep the cache in sync and print every change",
	Long:  "Connect, log in if needed and keep the local cache up to date, printing one line per change notification until interrupted.",
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

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer cancel()

		s, err := openSession(ctx, cfg, logger)
		if err != nil {
			return err
		}
		sub := s.hub.Subscribe()
		defer sub.Close()

		return s.run(ctx, s.syncContacts, func(ctx context.Context) error {
			for {
				u, err := sub.Next(ctx)
				if err != nil {
					return err
				}
				logger.Debug("Update", zap.Stringer("ref", u.Ref()))
				fmt.Fprintln(cmd.OutOrStdout(), describeUpdate(u))
			}
		})
	},
}

// describeUpdate is the one-line form of an update.
func describeUpdate(u notify.Update) string {
	switch u := u.(type) {
	case notify.AccountUpdated:
		return fmt.Sprintf("%s  %s", u.Ref(), u.Account.DisplayName())
	case notify.AccountStatusUpdated:
		return fmt.Sprintf("%s  status %s", u.Ref(), u.Presence)
	case notify.AccountFullUpdated:
		return fmt.Sprintf("%s  full (blocked=%t)", u.Ref(), u.Full.Blocked)
	case notify.BasicGroupUpdated:
		return fmt.Sprintf("%s  %q %d members, %s", u.Ref(), u.Group.Title, u.Group.ParticipantCount, u.Group.Status)
	case notify.BasicGroupFullUpdated:
		return fmt.Sprintf("%s  full (%d members listed)", u.Ref(), len(u.Full.Members))
	case notify.ChannelUpdated:
		return fmt.Sprintf("%s  %q %s", u.Ref(), u.Channel.Title, u.Channel.Status)
	case notify.ChannelFullUpdated:
		return fmt.Sprintf("%s  full (%d members)", u.Ref(), u.Full.ParticipantCount)
	case notify.SecretChatUpdated:
		return fmt.Sprintf("%s  %s", u.Ref(), u.SecretChat.State)
	case notify.ContactsUpdated:
		return fmt.Sprintf("contacts  %d", len(u.UserIDs))
	default:
		return fmt.Sprintf("%s  %T", u.Ref(), u)
	}
}
