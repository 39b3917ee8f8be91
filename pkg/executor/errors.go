// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"fmt"
	"strings"

	"github.com/arcfield/toolgate/pkg/registry/models"
)

// NotFoundError is returned when a tool name does not resolve. It
// carries close-match suggestions so agents can self-correct instead
// of retrying blind.
type NotFoundError struct {
	Name        string
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("tool %q not found", e.Name)
	}
	return fmt.Sprintf("tool %q not found, did you mean: %s",
		e.Name, strings.Join(e.Suggestions, ", "))
}

func (*NotFoundError) Unwrap() error {
	return models.ErrNotFound
}

// ValidationError reports an argument that failed the tool's input
// schema, including the schema path that rejected it.
type ValidationError struct {
	ToolName string
	Details  []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("arguments for %q failed validation: %s",
		e.ToolName, strings.Join(e.Details, "; "))
}

func (*ValidationError) Unwrap() error {
	return models.ErrInvalidInput
}
