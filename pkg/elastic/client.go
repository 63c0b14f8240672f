// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package elastic is a small REST client for Elasticsearch-compatible
// document stores. It covers the calls the agent tools need: search, bulk
// writes and index administration.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/esagent/pkg/config"
	"github.com/kadirpekel/esagent/pkg/httpclient"
	"github.com/kadirpekel/esagent/pkg/observability"
)

const (
	contentTypeJSON   = "application/json"
	contentTypeNDJSON = "application/x-ndjson"

	// compressThreshold skips gzip for tiny bodies.
	compressThreshold = 1024

	defaultRetryDelay = 500 * time.Millisecond
)

// Client talks to one cluster. It is safe for concurrent use.
type Client struct {
	baseURL  string
	http     *httpclient.Client
	compress bool
	logger   *slog.Logger
}

// New builds a client from cfg. Extra options are applied after the ones
// derived from cfg, so tests can swap the transport.
func New(cfg config.ElasticConfig, opts ...httpclient.Option) (*Client, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid elastic config: %w", err)
	}

	transport, err := httpclient.ConfigureTLS(&httpclient.TLSConfig{
		InsecureSkipVerify: !config.BoolValue(cfg.VerifyCertificates, true),
		CACertificate:      cfg.CACerts,
		CertFingerprint:    cfg.CertFingerprint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure TLS: %w", err)
	}

	logger := slog.Default().With("component", "elastic")
	base := []httpclient.Option{
		httpclient.WithTransport(transport),
		httpclient.WithTimeout(cfg.RequestTimeout),
		httpclient.WithMaxRetries(cfg.MaxRetries),
		httpclient.WithBaseDelay(defaultRetryDelay),
		httpclient.WithHeaderParser(httpclient.ParseRetryAfter),
		httpclient.WithBasicAuth(cfg.User, cfg.Password),
		httpclient.WithRateLimit(cfg.RequestsPerSecond, 0),
		httpclient.WithLogger(logger),
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.Server, "/"),
		http:     httpclient.New(append(base, opts...)...),
		compress: config.BoolValue(cfg.Compress, true),
		logger:   logger,
	}, nil
}

// BaseURL returns the cluster URL the client was built for.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// request is one REST call.
type request struct {
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
	index       string
}

// do sends r and returns the response body of a 2xx reply. Non-2xx replies
// become *APIError.
func (c *Client) do(ctx context.Context, r request) (body []byte, err error) {
	ctx, span := observability.GetTracer(observability.TracerElastic).Start(ctx, observability.SpanBackend,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(observability.AttrHTTPMethod, r.method),
			attribute.String("esagent.elastic.path", r.path),
			attribute.String(observability.AttrIndex, r.index),
		),
	)
	defer func() { observability.EndSpan(span, err) }()

	status, body, err := c.send(ctx, r)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int(observability.AttrHTTPStatusCode, status))

	if status < 200 || status >= 300 {
		return nil, parseAPIError(status, body)
	}
	return body, nil
}

// send performs the HTTP exchange and returns the status and body whatever
// the status is.
func (c *Client) send(ctx context.Context, r request) (int, []byte, error) {
	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	payload := r.body
	gzipped := false
	if c.compress && len(payload) >= compressThreshold {
		compressed, err := gzipBytes(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to compress request body: %w", err)
		}
		payload, gzipped = compressed, true
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Accept", contentTypeJSON)
	if payload != nil {
		ct := r.contentType
		if ct == "" {
			ct = contentTypeJSON
		}
		req.Header.Set("Content-Type", ct)
		if gzipped {
			req.Header.Set("Content-Encoding", "gzip")
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s failed: %w", r.method, r.path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Debug("Backend request", "method", r.method, "path", r.path, "status", resp.StatusCode, "bytes", len(body))
	return resp.StatusCode, body, nil
}

func (c *Client) doJSON(ctx context.Context, r request, out any) error {
	body, err := c.do(ctx, r)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", r.method, r.path, err)
	}
	return nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// indexPath escapes an index expression for use as a path segment. Commas and
// wildcards stay literal so multi-index expressions keep working.
func indexPath(index string) string {
	escaped := url.PathEscape(index)
	escaped = strings.ReplaceAll(escaped, "%2C", ",")
	escaped = strings.ReplaceAll(escaped, "%2A", "*")
	return "/" + escaped
}
