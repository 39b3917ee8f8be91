// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the toolgate server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/arcfield/toolgate/cmd/toolgate/app"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	if err := app.NewRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
