// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the toolgate command-line
// application.
package app

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arcfield/toolgate/pkg/logger"
	"github.com/arcfield/toolgate/pkg/versions"
)

var rootCmd = &cobra.Command{
	Use:               "toolgate",
	DisableAutoGenTag: true,
	Short:             "Toolgate is a tool registry and discovery gateway for LLM agents",
	Long: `Toolgate is a centralized tool registry and discovery gateway for LLM agents.

It ingests tool definitions from upstream MCP (Model Context Protocol)
servers and an optional LLM gateway, indexes them with hybrid
semantic/lexical search over pgvector, and routes tool calls to their
backing implementation. Agents reach it either through the REST API or
through its own MCP endpoint.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// No subcommand prints help.
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.Initialize()
	},
}

// NewRootCmd creates the root command for the toolgate CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.SilenceUsage = true
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show the toolgate version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versions.GetVersionInfo()
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Toolgate %s\n", info.Version)
			fmt.Fprintf(cmd.OutOrStdout(), "Commit: %s\n", info.Commit)
			fmt.Fprintf(cmd.OutOrStdout(), "Built: %s\n", info.BuildDate)
			fmt.Fprintf(cmd.OutOrStdout(), "Go version: %s\n", info.GoVersion)
			fmt.Fprintf(cmd.OutOrStdout(), "Platform: %s\n", info.Platform)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version information as JSON")
	return cmd
}
