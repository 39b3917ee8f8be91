// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/arcfield/toolgate/pkg/logger"
	"github.com/arcfield/toolgate/pkg/registry/models"
)

// defaultCABundle is picked up automatically when present, for
// deployments fronted by an internal CA.
const defaultCABundle = "/etc/ssl/certs/ca-custom.pem"

// httpToolConfig is the implementation_code payload of an
// HTTP_ENDPOINT tool.
type httpToolConfig struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Timeout float64           `json:"timeout"`
}

// newBackendHTTPClient builds the client used for HTTP_ENDPOINT tools,
// loading the custom CA bundle when one is installed.
func newBackendHTTPClient(timeout time.Duration) (*http.Client, error) {
	transport := &http.Transport{
		TLSHandshakeTimeout: 10 * time.Second,
	}

	if data, err := os.ReadFile(defaultCABundle); err == nil {
		pool, err := x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(data) {
			return nil, fmt.Errorf("failed to parse CA bundle at %s", defaultCABundle)
		}
		transport.TLSClientConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			RootCAs:    pool,
		}
		logger.Infof("Loaded custom CA bundle from %s", defaultCABundle)
	}

	return &http.Client{Transport: transport, Timeout: timeout}, nil
}

// callHTTPEndpoint executes an HTTP_ENDPOINT tool. GET requests carry
// the arguments as query parameters; mutating methods send them as a
// JSON body.
func callHTTPEndpoint(ctx context.Context, client *http.Client, implCode string, args map[string]any) (any, error) {
	if implCode == "" {
		return nil, fmt.Errorf("%w: HTTP endpoint configuration is empty", models.ErrInvalidTool)
	}
	var cfg httpToolConfig
	if err := json.Unmarshal([]byte(implCode), &cfg); err != nil {
		return nil, fmt.Errorf("%w: invalid endpoint configuration: %v", models.ErrInvalidTool, err)
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: endpoint URL is required", models.ErrInvalidTool)
	}
	method := cfg.Method
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	target := cfg.URL
	switch method {
	case http.MethodGet:
		params := url.Values{}
		for key, value := range args {
			params.Set(key, fmt.Sprintf("%v", value))
		}
		if encoded := params.Encode(); encoded != "" {
			sep := "?"
			if u, err := url.Parse(cfg.URL); err == nil && u.RawQuery != "" {
				sep = "&"
			}
			target = cfg.URL + sep + encoded
		}
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		payload, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("marshaling arguments: %w", err)
		}
		body = bytes.NewReader(payload)
	default:
		return nil, fmt.Errorf("%w: unsupported HTTP method %q", models.ErrInvalidTool, method)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range cfg.Headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: endpoint returned %d: %s",
			models.ErrBackendUnavailable, resp.StatusCode, truncateString(string(data), 512))
	}

	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return map[string]any{"response": string(data)}, nil
	}
	return parsed, nil
}

func truncateString(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
