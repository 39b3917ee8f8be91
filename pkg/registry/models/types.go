// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

package models

import (
	"database/sql/driver"
	"fmt"
)

// ImplementationType identifies which backend executes a tool.
type ImplementationType string

const (
	// ImplPythonCallable routes to a callable registered in the in-process
	// function table. The name is kept for wire compatibility with catalogs
	// that predate the Go executor.
	ImplPythonCallable ImplementationType = "PYTHON_CALLABLE"
	// ImplHTTPEndpoint routes to a configured HTTP endpoint.
	ImplHTTPEndpoint ImplementationType = "HTTP_ENDPOINT"
	// ImplMCPServer routes to an upstream MCP server via tools/call.
	ImplMCPServer ImplementationType = "MCP_SERVER"
	// ImplLLMGateway routes to the LLM gateway's chat completions.
	ImplLLMGateway ImplementationType = "LLM_GATEWAY"
	// ImplCommandLine runs a whitelisted executable as a child process.
	ImplCommandLine ImplementationType = "COMMAND_LINE"
)

// Valid returns true if the implementation type is known.
func (t ImplementationType) Valid() bool {
	switch t {
	case ImplPythonCallable, ImplHTTPEndpoint, ImplMCPServer, ImplLLMGateway, ImplCommandLine:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (t ImplementationType) String() string {
	return string(t)
}

// Value implements the driver.Valuer interface for database storage.
func (t ImplementationType) Value() (driver.Value, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid implementation type: %s", t)
	}
	return string(t), nil
}

// Scan implements the sql.Scanner interface for database retrieval.
func (t *ImplementationType) Scan(value any) error {
	if value == nil {
		return fmt.Errorf("implementation type cannot be nil")
	}
	str, ok := value.(string)
	if !ok {
		return fmt.Errorf("implementation type must be a string, got %T", value)
	}
	*t = ImplementationType(str)
	if !t.Valid() {
		return fmt.Errorf("invalid implementation type from database: %s", str)
	}
	return nil
}

// ExecutionStatus is the terminal state of a tool execution.
type ExecutionStatus string

const (
	// StatusSuccess indicates the backend returned a result.
	StatusSuccess ExecutionStatus = "SUCCESS"
	// StatusError indicates the backend or validation failed.
	StatusError ExecutionStatus = "ERROR"
	// StatusTimeout indicates the per-call deadline expired.
	StatusTimeout ExecutionStatus = "TIMEOUT"
)

// Valid returns true if the status is known.
func (s ExecutionStatus) Valid() bool {
	switch s {
	case StatusSuccess, StatusError, StatusTimeout:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (s ExecutionStatus) String() string {
	return string(s)
}

// Value implements the driver.Valuer interface for database storage.
func (s ExecutionStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid execution status: %s", s)
	}
	return string(s), nil
}

// Scan implements the sql.Scanner interface for database retrieval.
func (s *ExecutionStatus) Scan(value any) error {
	if value == nil {
		return fmt.Errorf("execution status cannot be nil")
	}
	str, ok := value.(string)
	if !ok {
		return fmt.Errorf("execution status must be a string, got %T", value)
	}
	*s = ExecutionStatus(str)
	if !s.Valid() {
		return fmt.Errorf("invalid execution status from database: %s", str)
	}
	return nil
}
