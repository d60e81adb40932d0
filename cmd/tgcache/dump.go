package main

import (
	"os"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/danhigham/tgcache/internal/persist"
)

func init() {
	rootCmd.AddCommand(dumpCmd)
}

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print every persisted record as YAML",
	Long:  "Decode the local cache database and print its contents as YAML. Does not connect to Telegram.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(false)
		if err != nil {
			return err
		}
		if _, err := os.Stat(cfg.Cache.Database); err != nil {
			return errors.Wrap(err, "cache database")
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx := cmd.Context()
		storage, err := persist.OpenSQLite(ctx, cfg.Cache.Database)
		if err != nil {
			return err
		}
		defer func() {
			if err := storage.Close(); err != nil {
				logger.Warn("Failed to close storage", zap.Error(err))
			}
		}()

		contents, err := persist.ReadAll(ctx, storage)
		if err != nil {
			return err
		}
		logger.Debug("Dump", zap.Int("records", len(contents.Records)), zap.Int("pending", contents.Pending))

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer func() { _ = enc.Close() }()
		return enc.Encode(dumpDocument(contents))
	},
}

type dumpRecord struct {
	Key   string `yaml:"key"`
	Ref   string `yaml:"ref"`
	Full  bool   `yaml:"full,omitempty"`
	Value any    `yaml:"value,omitempty"`
	Error string `yaml:"error,omitempty"`
}

type dumpContacts struct {
	SavedCount int32   `yaml:"saved_count"`
	UserIDs    []int64 `yaml:"user_ids"`
}

type dumpDoc struct {
	SelfID   int64         `yaml:"self_id"`
	Contacts *dumpContacts `yaml:"contacts,omitempty"`
	Pending  int           `yaml:"pending_log"`
	Records  []dumpRecord  `yaml:"records"`
}

func dumpDocument(c *persist.Contents) dumpDoc {
	doc := dumpDoc{
		SelfID:  int64(c.SelfID),
		Pending: c.Pending,
		Records: make([]dumpRecord, 0, len(c.Records)),
	}
	if c.Contacts != nil {
		dc := &dumpContacts{SavedCount: c.Contacts.SavedCount}
		for _, id := range c.Contacts.UserIDs {
			dc.UserIDs = append(dc.UserIDs, int64(id))
		}
		doc.Contacts = dc
	}
	for _, r := range c.Records {
		dr := dumpRecord{Key: r.Key, Ref: r.Ref.String(), Full: r.Full, Value: r.Value}
		if r.Err != nil {
			dr.Error = r.Err.Error()
		}
		doc.Records = append(doc.Records, dr)
	}
	return doc
}
