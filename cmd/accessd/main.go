// accessd - authenticated, time-bounded network access control
// Copyright (C) 2026 accessd-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/accessd-project/accessd/config"
	"github.com/accessd-project/accessd/internal/logger"
	"github.com/accessd-project/accessd/internal/version"
	"github.com/accessd-project/accessd/server"
)

var (
	flagDuration   uint64
	flagStateFile  string
	flagKeyFile    string
	flagForeground bool
	flagConfigFile string
	flagHealthPort int
)

var rootCmd = &cobra.Command{
	Use:   "accessd [flags] <CMD>",
	Short: "Grants time-limited, authenticated network access",
	Long: `accessd listens for authenticated session requests over UDP and
grants, renews and revokes time-limited access for client IP addresses.
CMD is the hook executable invoked as "CMD grant <ip>" and
"CMD revoke <ip>" to manipulate the firewall.`,
	Args:    cobra.ExactArgs(1),
	Version: version.String(),
	RunE:    runDaemon,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().Uint64VarP(&flagDuration, "duration", "d", 900, "duration of access (seconds)")
	rootCmd.Flags().StringVarP(&flagStateFile, "state-file", "s", config.DefaultStateFilename, "path to state file")
	rootCmd.Flags().StringVarP(&flagKeyFile, "key-data-file", "k", config.DefaultKeyDataFilename, "path to key data file")
	rootCmd.Flags().BoolVarP(&flagForeground, "foreground", "f", false, "run in the foreground (the default; accepted for compatibility)")
	rootCmd.Flags().StringVar(&flagConfigFile, "config", "", "optional YAML config file")
	rootCmd.Flags().IntVar(&flagHealthPort, "health-port", 0, "enable the health/metrics listener on this port")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	// Optional .env next to the daemon; absence is not an error.
	_ = godotenv.Load()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.Hook = args[0]

	log := logger.NewDefaultLogger()
	if cfg.Logging != nil && cfg.Logging.Level != "" && os.Getenv("ACCESSD_LOG_LEVEL") == "" {
		log.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	}

	srv, err := server.New(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}

// loadConfig builds the effective configuration: the config file (if any)
// overlaid with whichever flags were given on the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if flagConfigFile != "" {
		var err error
		cfg, err = config.LoadFromFile(flagConfigFile)
		if err != nil {
			return nil, err
		}
	}

	if cmd.Flags().Changed("duration") {
		cfg.Session.DurationSeconds = flagDuration
	}
	if cmd.Flags().Changed("state-file") {
		cfg.Paths.StateFile = flagStateFile
	}
	if cmd.Flags().Changed("key-data-file") {
		cfg.Paths.KeyDataFile = flagKeyFile
	}
	if cmd.Flags().Changed("health-port") {
		cfg.Health.Enabled = flagHealthPort > 0
		cfg.Health.Port = flagHealthPort
	}

	return cfg, cfg.Validate()
}
