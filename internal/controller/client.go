package controller

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/yanet-platform/flowlb/internal/flow"
)

const nodesPath = "/restconf/config/opendaylight-inventory:nodes/node/"

type options struct {
	Log        *zap.SugaredLogger
	HTTPClient *http.Client
}

func newOptions() *options {
	return &options{
		Log: zap.NewNop().Sugar(),
	}
}

// ClientOption is a function that configures the controller client.
type ClientOption func(*options)

// WithLog sets the logger for the controller client.
func WithLog(log *zap.SugaredLogger) ClientOption {
	return func(o *options) {
		o.Log = log
	}
}

// WithHTTPClient overrides the HTTP client used to reach the controller.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(o *options) {
		o.HTTPClient = client
	}
}

// Client manages flows through the OpenDaylight RESTCONF API.
//
// It is safe for concurrent use.
type Client struct {
	cfg     Config
	baseURL string
	http    *http.Client
	log     *zap.SugaredLogger
}

// New creates a controller client.
func New(cfg Config, options ...ClientOption) (*Client, error) {
	opts := newOptions()
	for _, o := range options {
		o(opts)
	}

	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to parse controller endpoint: %w", err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return nil, fmt.Errorf("unsupported controller endpoint scheme %q", endpoint.Scheme)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		cfg:     cfg,
		baseURL: strings.TrimSuffix(endpoint.String(), "/"),
		http:    httpClient,
		log:     opts.Log.Named("controller"),
	}, nil
}

// InstallFlow installs the rule into its table on the given node,
// replacing any rule with the same ID.
func (m *Client) InstallFlow(ctx context.Context, node string, rule *flow.Rule) (Outcome, error) {
	body, err := EncodeFlow(rule)
	if err != nil {
		return 0, fmt.Errorf("failed to encode flow: %w", err)
	}

	code, err := m.do(ctx, http.MethodPut, m.flowURL(node, rule.Table, rule.ID), body)
	if err != nil {
		return 0, err
	}

	if code == http.StatusCreated {
		return OutcomeCreated, nil
	}
	return OutcomeUpdated, nil
}

// DeleteFlow removes a single rule. A missing rule is not an error.
func (m *Client) DeleteFlow(ctx context.Context, node string, table uint8, id string) (Outcome, error) {
	return m.delete(ctx, m.flowURL(node, table, id))
}

// ClearTable removes every rule of the table on the given node. An empty
// table is not an error.
func (m *Client) ClearTable(ctx context.Context, node string, table uint8) (Outcome, error) {
	return m.delete(ctx, m.tableURL(node, table))
}

func (m *Client) delete(ctx context.Context, target string) (Outcome, error) {
	code, err := m.do(ctx, http.MethodDelete, target, nil, http.StatusNotFound)
	if err != nil {
		return 0, err
	}
	if code == http.StatusNotFound {
		return OutcomeNoop, nil
	}
	return OutcomeRemoved, nil
}

func (m *Client) tableURL(node string, table uint8) string {
	return m.baseURL + nodesPath + url.PathEscape(node) + "/table/" + strconv.Itoa(int(table))
}

func (m *Client) flowURL(node string, table uint8, id string) string {
	return m.tableURL(node, table) + "/flow/" + url.PathEscape(id)
}

// do performs the request and returns its status code. Statuses other
// than 200, 201, 204 and the explicitly accepted ones produce a
// *StatusError.
func (m *Client) do(ctx context.Context, method string, target string, body []byte, accepted ...int) (int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if m.cfg.Username != "" {
		req.SetBasicAuth(m.cfg.Username, m.cfg.Password)
	}

	m.log.Debugw("sending request", zap.String("method", method), zap.String("url", target))

	resp, err := m.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, int64(m.cfg.MaxResponseSize.Bytes())))
	if err != nil {
		return 0, fmt.Errorf("%s %s: failed to read response: %w", method, target, err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return resp.StatusCode, nil
	}
	for _, code := range accepted {
		if resp.StatusCode == code {
			return resp.StatusCode, nil
		}
	}

	return 0, &StatusError{
		Method: method,
		URL:    target,
		Code:   resp.StatusCode,
		Body:   strings.TrimSpace(string(payload)),
	}
}
