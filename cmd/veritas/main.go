// Command veritas runs the verification backend and offers one-shot checks
// from the terminal.
//
//	veritas serve
//	veritas check "The Eiffel Tower is in Rome." [--image FILE|--image-url URL|--url URL] [--json]
//	veritas history [--clear] [--limit N] [--query Q]
//	veritas test-key [KEY]
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/veritas-backend/internal/config"
	"github.com/tbourn/veritas-backend/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// errVerdictFailed marks a check that completed with an Error verdict. The
// verdict has already been printed.
var errVerdictFailed = errors.New("verification failed")

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		if errors.Is(err, errVerdictFailed) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// cli carries state shared by the subcommands once the root pre-run has
// loaded configuration.
type cli struct {
	envFile string
	cfg     config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "veritas",
		Short: "Veritas fact-check backend",
		Long: `Veritas checks claims, optionally with an image or a web page as context,
against a cloud model with real-time grounding, falling back to an on-device
model when no API key is configured.

Configuration comes from the environment, optionally seeded from a .env file.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnvFile(c.envFile, cmd.Flags().Changed("env-file")); err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			c.cfg = cfg
			sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty, cmd.ErrOrStderr())
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	root.AddCommand(
		newServeCmd(c),
		newCheckCmd(c),
		newHistoryCmd(c),
		newTestKeyCmd(c),
	)
	return root
}

// loadEnvFile seeds the environment from path without overriding variables
// that are already set. A missing default file is not an error.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	switch {
	case err == nil:
		log.Debug().Str("file", path).Msg("environment file loaded")
		return nil
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		return nil
	default:
		return fmt.Errorf("env file %s: %w", path, err)
	}
}
