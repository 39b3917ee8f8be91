// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

package models

import "errors"

// Domain errors shared across the registry subpackages.
// Callers check these with errors.Is; wrapping errors add the specifics.
var (
	// ErrNotFound indicates a requested tool or execution row was not found.
	ErrNotFound = errors.New("not found")

	// ErrNameConflict indicates a tool name is already registered.
	ErrNameConflict = errors.New("tool name already exists")

	// ErrInvalidTool indicates a tool failed field validation.
	ErrInvalidTool = errors.New("invalid tool")

	// ErrSchemaInvalid indicates an input or output schema is not valid JSON Schema.
	ErrSchemaInvalid = errors.New("invalid JSON schema")

	// ErrInvalidInput indicates invalid request parameters (bad query, bad limit).
	ErrInvalidInput = errors.New("invalid input")

	// ErrToolInactive indicates the tool exists but is soft-deleted.
	ErrToolInactive = errors.New("tool is inactive")

	// ErrExecutorDisabled indicates the implementation's executor is switched off.
	ErrExecutorDisabled = errors.New("executor disabled")

	// ErrEmbeddingFailed indicates the embedding backend rejected or failed a request.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrEmbeddingShape indicates a returned vector has the wrong dimension.
	ErrEmbeddingShape = errors.New("embedding dimension mismatch")

	// ErrBackendUnavailable indicates an upstream dependency could not be reached.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrTimeout indicates a per-call deadline expired.
	ErrTimeout = errors.New("operation timed out")
)
