// Package transport executes GraphQL documents against the upstream API over HTTP.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"graphql-admin/internal/listquery"
)

// ErrGraphQL wraps errors reported in the "errors" member of a response.
var ErrGraphQL = errors.New("graphql error")

const defaultMaxResponseBytes = 32 << 20

// OAuth2Config enables the client-credentials grant for upstream requests.
type OAuth2Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Config configures a Client.
type Config struct {
	Endpoint string
	Timeout  time.Duration
	Headers  map[string]string
	// BearerToken is sent as a static Authorization header. Ignored when OAuth2 is set.
	BearerToken string
	OAuth2      *OAuth2Config
	// HTTPClient replaces the instrumented default client. Auth settings wrap its transport.
	HTTPClient       *http.Client
	MaxResponseBytes int64
}

// Client posts GraphQL requests to one endpoint.
type Client struct {
	endpoint string
	headers  map[string]string
	http     *http.Client
	maxBytes int64
}

// Request is a GraphQL request body.
type Request struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
}

// GraphQLError is one entry of a response's "errors" member.
type GraphQLError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// Response is a decoded GraphQL response. Numbers inside Data are left as raw JSON.
type Response struct {
	Data       json.RawMessage            `json:"data"`
	Errors     []GraphQLError             `json:"errors"`
	Extensions map[string]json.RawMessage `json:"extensions"`
	// Body is the undecoded response body.
	Body []byte `json:"-"`
}

// Result is what a list fetch yields.
type Result struct {
	Rows []map[string]any
	// TotalCount is read from extensions.count; nil when absent or not an integer.
	TotalCount *int
}

// New builds a client. Outbound requests are traced with otelhttp.
func New(cfg Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("upstream endpoint is required")
	}

	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}

	clone := *base
	httpClient := &clone
	switch {
	case cfg.OAuth2 != nil:
		cc := clientcredentials.Config{
			ClientID:     cfg.OAuth2.ClientID,
			ClientSecret: cfg.OAuth2.ClientSecret,
			TokenURL:     cfg.OAuth2.TokenURL,
			Scopes:       cfg.OAuth2.Scopes,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		httpClient = cc.Client(ctx)
	case cfg.BearerToken != "":
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: cfg.BearerToken,
			TokenType:   "Bearer",
		}))
	}
	if cfg.Timeout > 0 {
		httpClient.Timeout = cfg.Timeout
	}

	maxBytes := cfg.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxResponseBytes
	}

	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	return &Client{endpoint: endpoint, headers: headers, http: httpClient, maxBytes: maxBytes}, nil
}

// Do posts a request and decodes the response envelope. A response carrying GraphQL
// errors is returned together with an ErrGraphQL error.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/graphql-response+json, application/json")
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upstream response: %w", err)
	}
	if int64(len(raw)) > c.maxBytes {
		return nil, fmt.Errorf("upstream response exceeds %d bytes", c.maxBytes)
	}

	resp := &Response{Body: raw}
	decodeErr := decodeEnvelope(raw, resp)

	if len(resp.Errors) > 0 {
		return resp, fmt.Errorf("%w: %s", ErrGraphQL, joinMessages(resp.Errors))
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return resp, fmt.Errorf("upstream returned status %d", httpResp.StatusCode)
	}
	if decodeErr != nil {
		return resp, fmt.Errorf("failed to decode upstream response: %w", decodeErr)
	}
	return resp, nil
}

// Execute runs a compiled list query and extracts the rows of its list field.
func (c *Client) Execute(ctx context.Context, q listquery.Query) (Result, error) {
	resp, err := c.Do(ctx, Request{
		Query:         q.Text,
		Variables:     q.Variables.Map(),
		OperationName: listquery.OperationName,
	})
	if err != nil {
		return Result{}, err
	}

	rows, err := listRows(resp.Data, q.Field)
	if err != nil {
		return Result{}, err
	}
	return Result{Rows: rows, TotalCount: extensionCount(resp.Extensions)}, nil
}

func decodeEnvelope(raw []byte, resp *Response) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty body")
	}
	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()
	return decoder.Decode(resp)
}

// listRows reads data[field]. A missing or non-list value yields no rows.
func listRows(data json.RawMessage, field string) ([]map[string]any, error) {
	if len(data) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return []map[string]any{}, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response data: %w", err)
	}
	rawList, ok := envelope[field]
	if !ok {
		return []map[string]any{}, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(rawList))
	decoder.UseNumber()
	var items []any
	if err := decoder.Decode(&items); err != nil {
		return []map[string]any{}, nil
	}

	rows := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if row, ok := item.(map[string]any); ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func extensionCount(extensions map[string]json.RawMessage) *int {
	raw, ok := extensions["count"]
	if !ok {
		return nil
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil
	}
	n, ok := value.(json.Number)
	if !ok {
		return nil
	}
	if i, err := n.Int64(); err == nil {
		if i < 0 {
			return nil
		}
		count := int(i)
		return &count
	}
	f, err := n.Float64()
	if err != nil || f < 0 || f != math.Trunc(f) || f >= math.MaxInt64 {
		return nil
	}
	count := int(f)
	return &count
}

func joinMessages(errs []GraphQLError) string {
	messages := make([]string, 0, len(errs))
	for _, e := range errs {
		if e.Message != "" {
			messages = append(messages, e.Message)
		}
	}
	if len(messages) == 0 {
		return "unknown error"
	}
	return strings.Join(messages, "; ")
}
