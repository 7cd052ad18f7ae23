/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Rifat79/dcb-renewal-service/internal/constants"
	"github.com/Rifat79/dcb-renewal-service/internal/logging"
)

// rootCmd is the entry point for the renewal service binary.
var rootCmd = &cobra.Command{
	Use:   "dcb-renewal-service",
	Short: "Direct carrier billing subscription renewal engine",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		configureLogger(cmd)
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Nothing to do. Use a sub-command: " + constants.ServeSubcommand + " or " + constants.MigrateSubcommand + ".")
	},
}

func init() {
	logging.AddFlags(rootCmd.PersistentFlags())
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func configureLogger(cmd *cobra.Command) {
	l, err := logging.NewLogger().
		SetFlags(cmd.Flags()).
		AddField("service", "dcb-renewal-service").
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(l)
	slog.Info("renewal service logger configured")
}
