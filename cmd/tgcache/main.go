package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danhigham/tgcache/internal/config"
)

var (
	configPath string
	phone      string
)

var rootCmd = &cobra.Command{
	Use:           "tgcache",
	Short:         "Client-side cache of Telegram accounts, groups and channels",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", filepath.Join(config.Dir(), "config.yaml"), "path to config.yaml")
	rootCmd.PersistentFlags().StringVar(&phone, "phone", "", "phone number to log in with (overrides config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file. A missing file is only an error when
// Telegram credentials are needed.
func loadConfig(needCredentials bool) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if errors.Is(err, os.ErrNotExist) && !needCredentials {
		def := config.Default()
		return &def, nil
	}
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errors.Errorf("%v\n\n%s", err, configHelp())
		}
		return nil, err
	}
	if phone != "" {
		cfg.Telegram.Phone = phone
	}
	if needCredentials && !cfg.HasCredentials() {
		return nil, errors.Errorf("telegram.api_id and telegram.api_hash are required\n\n%s", configHelp())
	}
	return cfg, nil
}

func configHelp() string {
	return fmt.Sprintf("Create the config file with:\n"+
		"  mkdir -p %s\n"+
		"  cat > %s << 'EOF'\n"+
		"telegram:\n  api_id: YOUR_API_ID\n  api_hash: \"YOUR_API_HASH\"\n"+
		"EOF\n\n"+
		"Get API credentials from https://my.telegram.org",
		filepath.Dir(configPath), configPath)
}

// newLogger writes to a log file next to the config, keeping the terminal
// free for prompts and the browser.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, errors.Wrap(err, "log level")
	}
	logCfg := zap.NewProductionConfig()
	if level.Level() == zap.DebugLevel {
		logCfg = zap.NewDevelopmentConfig()
	}
	logCfg.Level = level

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "create config dir")
	}
	logPath := filepath.Join(dir, "tgcache.log")
	logCfg.OutputPaths = []string{logPath}
	logCfg.ErrorOutputPaths = []string{logPath}
	return logCfg.Build()
}
