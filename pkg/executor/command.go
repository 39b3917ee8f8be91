// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/google/shlex"

	"github.com/arcfield/toolgate/pkg/registry/models"
)

// commandToolConfig is the implementation_code payload of a
// COMMAND_LINE tool. The command is a template with {name}
// placeholders filled from the call arguments.
type commandToolConfig struct {
	Command         string            `json:"command"`
	WorkingDir      string            `json:"working_dir"`
	Timeout         float64           `json:"timeout"`
	AllowedCommands []string          `json:"allowed_commands"`
	Env             map[string]string `json:"env"`
}

// shellMeta matches characters that could smuggle extra shell syntax
// through a substituted argument.
var shellMeta = regexp.MustCompile("[;&|`$(){}\\[\\]<>\\\\'\"]")

// placeholder matches an unfilled {name} slot after substitution.
var placeholder = regexp.MustCompile(`\{[a-zA-Z_][a-zA-Z0-9_]*\}`)

// renderCommand substitutes {key} placeholders with sanitized argument
// values. Only strings, numbers, and booleans are substitutable.
func renderCommand(template string, args map[string]any) (string, error) {
	rendered := template
	for key, value := range args {
		var str string
		switch v := value.(type) {
		case string:
			if shellMeta.MatchString(v) {
				return "", fmt.Errorf("%w: argument %q contains disallowed shell characters",
					models.ErrInvalidInput, key)
			}
			str = v
		case float64, int, int64, bool:
			str = fmt.Sprintf("%v", v)
		default:
			return "", fmt.Errorf("%w: argument %q must be a string, number, or boolean",
				models.ErrInvalidInput, key)
		}
		rendered = strings.ReplaceAll(rendered, "{"+key+"}", str)
	}
	if missing := placeholder.FindString(rendered); missing != "" {
		return "", fmt.Errorf("%w: missing required argument for placeholder %s",
			models.ErrInvalidInput, missing)
	}
	return rendered, nil
}

// callCommandLine executes a COMMAND_LINE tool. The rendered command is
// tokenized with shlex and executed directly, never through a shell.
func callCommandLine(ctx context.Context, implCode string, args map[string]any) (any, error) {
	if implCode == "" {
		return nil, fmt.Errorf("%w: command configuration is empty", models.ErrInvalidTool)
	}
	var cfg commandToolConfig
	if err := json.Unmarshal([]byte(implCode), &cfg); err != nil {
		return nil, fmt.Errorf("%w: invalid command configuration: %v", models.ErrInvalidTool, err)
	}
	if cfg.Command == "" {
		return nil, fmt.Errorf("%w: command template is required", models.ErrInvalidTool)
	}

	rendered, err := renderCommand(cfg.Command, args)
	if err != nil {
		return nil, err
	}
	parts, err := shlex.Split(rendered)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid command format: %v", models.ErrInvalidInput, err)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: command cannot be empty", models.ErrInvalidInput)
	}

	executable := parts[0]
	if len(cfg.AllowedCommands) > 0 {
		allowed := false
		for _, candidate := range cfg.AllowedCommands {
			if executable == candidate {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, fmt.Errorf("%w: command %q is not in the allowed commands list",
				models.ErrInvalidInput, executable)
		}
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.Timeout*float64(time.Second)))
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, executable, parts[1:]...) // #nosec G204 -- tokenized, allow-listed, never a shell
	cmd.Dir = cfg.WorkingDir
	for key, value := range cfg.Env {
		cmd.Env = append(cmd.Env, key+"="+value)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: command killed on deadline: %w", models.ErrTimeout, ctx.Err())
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("command failed with exit code %d: %s",
				exitErr.ExitCode(), truncateString(stderr.String(), 512))
		}
		return nil, fmt.Errorf("command execution failed: %w", runErr)
	}

	return map[string]any{
		"stdout":      stdout.String(),
		"stderr":      stderr.String(),
		"return_code": 0,
	}, nil
}
