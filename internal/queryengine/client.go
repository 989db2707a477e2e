// Package queryengine implements the client that submits a query job to the
// remote query engine and polls until the result database is ready, then
// downloads it to the input mount.
//
// Design goals:
//
//   - Keep a tiny, explicit API (Execute).
//   - Respect context cancellation during requests and poll waits.
//   - Be easy to test by injecting a custom RoundTripper and sleep function.
//
// The streaming engine never talks to the network itself; this client is the
// only component with a timeout/poll-interval contract.
package queryengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Config configures the query engine client.
//
// Zero values are given sensible defaults:
//   - BaseURL:      https://query.vana.org (or QUERY_ENGINE_URL)
//   - Timeout:      150s total wait for completion
//   - PollInterval: 5s between status checks
//   - HTTPTimeout:  30s per request
type Config struct {
	// BaseURL is the query engine endpoint, without trailing slash.
	BaseURL string

	// Signature authenticates the query; sent as X-Query-Signature.
	Signature string

	// ResultsPath is where the downloaded result database is written.
	ResultsPath string

	// Timeout bounds the whole submit-and-poll exchange.
	Timeout time.Duration

	// PollInterval is the wait between status checks.
	PollInterval time.Duration

	// HTTPTimeout is the per-request timeout.
	HTTPTimeout time.Duration

	// Transport is an optional custom RoundTripper for tests.
	Transport http.RoundTripper
}

// Client submits queries and retrieves result databases.
type Client struct {
	cfg        Config
	httpClient *http.Client

	// sleep is injectable to make tests fast and deterministic.
	sleep func(time.Duration)
}

// Error reports a failed exchange with the query engine.
type Error struct {
	Message    string
	StatusCode int
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("queryengine: %s (status %d)", e.Message, e.StatusCode)
	}
	return "queryengine: " + e.Message
}

// NewClient constructs a Client from Config, applying defaults for zero values.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv("QUERY_ENGINE_URL")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://query.vana.org"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 150 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.HTTPTimeout,
			Transport: cfg.Transport,
		},
		sleep: time.Sleep,
	}
}

// Job identifies one query execution request.
type Job struct {
	Query     string
	Params    []any
	JobID     int64
	RefinerID int64
}

// Result carries the outcome of a completed query.
type Result struct {
	QueryID  string
	FilePath string
}

// Execute submits the job, polls until the query reaches a terminal status,
// and downloads the result database to the configured path.
func (c *Client) Execute(ctx context.Context, job Job) (*Result, error) {
	queryID, err := c.submit(ctx, job)
	if err != nil {
		return nil, err
	}
	return c.pollUntilComplete(ctx, queryID)
}

type submitRequest struct {
	Query     string `json:"query"`
	Params    []any  `json:"params"`
	RefinerID int64  `json:"refiner_id"`
	JobID     string `json:"job_id"`
}

type statusResponse struct {
	QueryStatus  string `json:"query_status"`
	QueryResults string `json:"query_results"`
	Detail       string `json:"detail"`
}

func (c *Client) submit(ctx context.Context, job Job) (string, error) {
	body, err := json.Marshal(submitRequest{
		Query:     job.Query,
		Params:    orEmpty(job.Params),
		RefinerID: job.RefinerID,
		JobID:     fmt.Sprintf("%d", job.JobID),
	})
	if err != nil {
		return "", fmt.Errorf("queryengine: marshal request: %w", err)
	}

	log.Printf("queryengine: submitting query job=%d refiner=%d", job.JobID, job.RefinerID)

	resp, err := c.do(ctx, http.MethodPost, c.cfg.BaseURL+"/query", body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &Error{Message: "submit failed: " + readDetail(resp), StatusCode: resp.StatusCode}
	}

	var out struct {
		QueryID string `json:"query_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("queryengine: decode submit response: %w", err)
	}
	if out.QueryID == "" {
		return "", &Error{Message: "no query ID returned from server", StatusCode: http.StatusInternalServerError}
	}

	log.Printf("queryengine: query submitted id=%s", out.QueryID)
	return out.QueryID, nil
}

func (c *Client) pollUntilComplete(ctx context.Context, queryID string) (*Result, error) {
	url := c.cfg.BaseURL + "/query/" + queryID
	deadline := time.Now().Add(c.cfg.Timeout)

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := c.do(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			return nil, &Error{Message: "query " + queryID + " not found", StatusCode: http.StatusNotFound}
		}
		if resp.StatusCode != http.StatusOK {
			detail := readDetail(resp)
			resp.Body.Close()
			return nil, &Error{Message: "poll failed: " + detail, StatusCode: resp.StatusCode}
		}

		var status statusResponse
		err = json.NewDecoder(resp.Body).Decode(&status)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("queryengine: decode status: %w", err)
		}

		log.Printf("queryengine: query=%s status=%s", queryID, status.QueryStatus)

		switch status.QueryStatus {
		case "success":
			res := &Result{QueryID: queryID}
			if status.QueryResults != "" {
				if err := c.download(ctx, status.QueryResults); err != nil {
					return nil, err
				}
				res.FilePath = c.cfg.ResultsPath
			}
			return res, nil

		case "failed":
			return nil, &Error{Message: "query " + queryID + " failed"}
		}

		c.sleep(c.cfg.PollInterval)
	}

	return nil, &Error{
		Message:    fmt.Sprintf("timeout exceeded (%s) waiting for query results", c.cfg.Timeout),
		StatusCode: http.StatusRequestTimeout,
	}
}

// download streams the result database to ResultsPath so memory stays flat
// regardless of result size.
func (c *Client) download(ctx context.Context, url string) error {
	log.Printf("queryengine: downloading results from %s", url)

	if err := os.MkdirAll(filepath.Dir(c.cfg.ResultsPath), 0o755); err != nil {
		return fmt.Errorf("queryengine: results dir: %w", err)
	}

	resp, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &Error{Message: "download failed: " + readDetail(resp), StatusCode: resp.StatusCode}
	}

	f, err := os.Create(c.cfg.ResultsPath)
	if err != nil {
		return fmt.Errorf("queryengine: create results file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("queryengine: write results file: %w", err)
	}

	log.Printf("queryengine: results saved to %s", c.cfg.ResultsPath)
	return nil
}

func (c *Client) do(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, fmt.Errorf("queryengine: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Signature != "" {
		req.Header.Set("X-Query-Signature", c.cfg.Signature)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Message: "connection error: " + err.Error(), StatusCode: http.StatusBadGateway}
	}
	return resp, nil
}

// readDetail extracts a short error description from a response body.
func readDetail(resp *http.Response) string {
	detail := fmt.Sprintf("status code: %d", resp.StatusCode)
	b, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(b) == 0 {
		return detail
	}
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(b, &parsed) == nil && parsed.Detail != "" {
		return detail + ", detail: " + parsed.Detail
	}
	if len(b) > 100 {
		b = b[:100]
	}
	return detail + ", response: " + string(b)
}

func orEmpty(params []any) []any {
	if params == nil {
		return []any{}
	}
	return params
}
