// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/arcfield/toolgate/pkg/registry/models"
)

// Callable is an in-process tool implementation. PYTHON_CALLABLE tools
// resolve their implementation_code path against a table of these,
// registered explicitly at startup; nothing is ever loaded dynamically.
type Callable func(ctx context.Context, args map[string]any) (any, error)

// callablePath validates dotted implementation paths like
// "tools.calculator.execute".
var callablePath = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)+$`)

// deniedPrefixes are path roots that may never host a callable,
// regardless of the allow list.
var deniedPrefixes = []string{"os", "sys", "subprocess", "pickle", "importlib", "builtins"}

// CallableRegistry maps implementation paths to registered callables.
type CallableRegistry struct {
	mu            sync.RWMutex
	funcs         map[string]Callable
	allowPrefixes []string
	enabled       bool
}

// NewCallableRegistry builds a registry. allowPrefixes restricts
// registrable paths to those roots; empty allows any non-denied path.
func NewCallableRegistry(enabled bool, allowPrefixes []string) *CallableRegistry {
	return &CallableRegistry{
		funcs:         make(map[string]Callable),
		allowPrefixes: allowPrefixes,
		enabled:       enabled,
	}
}

// Enabled reports whether in-process execution is allowed at all.
func (r *CallableRegistry) Enabled() bool {
	return r.enabled
}

// Register binds a callable to a path. Paths under denied roots are
// rejected even when the allow list would admit them.
func (r *CallableRegistry) Register(path string, fn Callable) error {
	if !callablePath.MatchString(path) {
		return fmt.Errorf("%w: implementation path %q must be a dotted identifier path",
			models.ErrInvalidInput, path)
	}
	root := path[:strings.IndexByte(path, '.')]
	for _, denied := range deniedPrefixes {
		if root == denied {
			return fmt.Errorf("%w: path root %q is denied", models.ErrInvalidInput, root)
		}
	}
	if len(r.allowPrefixes) > 0 && !r.allowed(root) {
		return fmt.Errorf("%w: path root %q is not in the allow list", models.ErrInvalidInput, root)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.funcs[path]; exists {
		return fmt.Errorf("%w: callable %q already registered", models.ErrNameConflict, path)
	}
	r.funcs[path] = fn
	return nil
}

func (r *CallableRegistry) allowed(root string) bool {
	for _, prefix := range r.allowPrefixes {
		if root == prefix {
			return true
		}
	}
	return false
}

// Call invokes the callable registered at path.
func (r *CallableRegistry) Call(ctx context.Context, path string, args map[string]any) (any, error) {
	if !r.enabled {
		return nil, fmt.Errorf("%w: in-process execution is disabled", models.ErrExecutorDisabled)
	}
	r.mu.RLock()
	fn, ok := r.funcs[path]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no callable registered at %q", models.ErrNotFound, path)
	}
	return fn(ctx, args)
}

// Paths lists registered callable paths, for diagnostics.
func (r *CallableRegistry) Paths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	paths := make([]string, 0, len(r.funcs))
	for p := range r.funcs {
		paths = append(paths, p)
	}
	return paths
}
