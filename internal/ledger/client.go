package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"semefo/internal/config"
	"semefo/internal/logging"
	"semefo/internal/media"
	"semefo/internal/services"
)

const (
	userAgent      = "semefo-worker/1.0"
	maxErrorDetail = 512
	defaultTimeout = 10 * time.Second
)

// HTTPDoer describes the HTTP client used by the ledger client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures a Client.
type Options struct {
	BaseURL           string
	ClientID          string
	ClientSecret      string
	Timeout           time.Duration
	RequestsPerSecond float64
	HTTPClient        HTTPDoer
	Now               func() time.Time
}

// Client talks to the ledger API.
type Client struct {
	baseURL     string
	credentials tokenRequest
	timeout     time.Duration
	http        HTTPDoer
	limiter     *rate.Limiter
	tokens      *tokenCache
	now         func() time.Time
	logger      *slog.Logger
}

// NewFromConfig builds a client from the ledger configuration section.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Client {
	return NewClient(Options{
		BaseURL:           cfg.Ledger.BaseURL,
		ClientID:          cfg.Ledger.ClientID,
		ClientSecret:      cfg.Ledger.ClientSecret,
		Timeout:           cfg.LedgerTimeout(),
		RequestsPerSecond: cfg.Ledger.RequestsPerSecond,
	}, logger)
}

// NewClient constructs a client. A zero RequestsPerSecond disables pacing.
func NewClient(opts Options, logger *slog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	doer := opts.HTTPClient
	if doer == nil {
		doer = &http.Client{Timeout: timeout}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	limit := rate.Inf
	burst := 1
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
		burst = int(math.Max(1, math.Ceil(opts.RequestsPerSecond)))
	}
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		credentials: tokenRequest{
			ClientID:     strings.TrimSpace(opts.ClientID),
			ClientSecret: strings.TrimSpace(opts.ClientSecret),
		},
		timeout: timeout,
		http:    doer,
		limiter: rate.NewLimiter(limit, burst),
		now:     now,
		logger:  logging.NewComponentLogger(logger, "ledger"),
	}
	c.tokens = &tokenCache{now: now, fetch: c.fetchToken}
	return c
}

// CreateOrResetJob registers a pendiente job for the session and kind. The
// ledger reuses the existing row for the same triple, so repeated calls
// return the same id.
func (c *Client) CreateOrResetJob(ctx context.Context, session media.Session, kind media.Kind, filename string) (JobID, error) {
	body := createJobRequest{
		Expediente: session.Expediente,
		SessionID:  session.ID,
		Kind:       kind,
		Filename:   filename,
		State:      JobPending,
	}
	var resp createJobResponse
	if err := c.do(ctx, "create job", http.MethodPost, "/jobs/crear", body, &resp); err != nil {
		return 0, err
	}
	if resp.JobID <= 0 {
		return 0, services.Wrap(services.ErrLedger, "ledger", "create job", "response carried no job_id", nil)
	}
	return resp.JobID, nil
}

// UpdateJob moves a job to a new state.
func (c *Client) UpdateJob(ctx context.Context, update JobUpdate) error {
	if err := update.Validate(); err != nil {
		return services.Wrap(services.ErrValidation, "ledger", "update job", "invalid update", err)
	}
	body := updateJobRequest{State: update.State, Result: update.Result, Error: update.Error}
	path := "/jobs/" + strconv.FormatInt(int64(update.ID), 10) + "/actualizar"
	return c.do(ctx, "update job", http.MethodPut, path, body, nil)
}

// RegisterFile records an artifact against the session unless a file of the
// same kind is already listed. It reports whether a new row was created.
func (c *Client) RegisterFile(ctx context.Context, session media.Session, kind media.Kind, originalPath string) (bool, error) {
	var existing []sessionFile
	listPath := "/sesiones/" + strconv.FormatInt(session.ID, 10) + "/archivos"
	if err := c.do(ctx, "list files", http.MethodGet, listPath, nil, &existing); err != nil {
		// A failed listing should not block registration.
		c.logger.Debug("session file listing failed; registering anyway",
			logging.String(logging.FieldSessionID, session.String()),
			logging.Error(err),
		)
		existing = nil
	}
	for _, file := range existing {
		if file.Kind == string(kind) {
			return false, nil
		}
	}
	body := registerFileRequest{
		SessionID:     session.ID,
		Kind:          kind,
		OriginalPath:  originalPath,
		ConvertedPath: originalPath,
		State:         string(JobProcessing),
		Complete:      false,
	}
	if err := c.do(ctx, "register file", http.MethodPost, "/archivos/", body, nil); err != nil {
		return false, err
	}
	return true, nil
}

// FinalizeFile marks the session's artifact of kind as complete.
func (c *Client) FinalizeFile(ctx context.Context, session media.Session, kind media.Kind, convertedPath string) error {
	body := finalizeFileRequest{
		State:         string(JobCompleted),
		Message:       "Archivo finalizado correctamente: " + convertedPath,
		FinishedAt:    c.now().UTC(),
		ConvertedPath: convertedPath,
		Complete:      true,
	}
	path := fmt.Sprintf("/archivos/%d/%s/actualizar_estado", session.ID, kind)
	return c.do(ctx, "finalize file", http.MethodPut, path, body, nil)
}

// Heartbeat posts the worker's liveness record.
func (c *Client) Heartbeat(ctx context.Context, payload HeartbeatPayload) error {
	return c.do(ctx, "heartbeat", http.MethodPost, "/infra/heartbeat", payload, nil)
}

// Ping checks that the ledger answers at all. Any HTTP response counts.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "ledger", "ping", "build request", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return services.Wrap(services.ErrLedger, "ledger", "ping", c.baseURL, err)
	}
	resp.Body.Close()
	return nil
}

func (c *Client) authenticated() bool {
	return c.credentials.ClientID != "" && c.credentials.ClientSecret != ""
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return services.Wrap(services.ErrValidation, "ledger", op, "encode request", err)
		}
		payload = data
	}

	status, data, err := c.send(ctx, op, method, path, payload, false)
	if err == nil && status == http.StatusUnauthorized && c.authenticated() {
		c.tokens.invalidate()
		status, data, err = c.send(ctx, op, method, path, payload, true)
	}
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return services.Wrap(services.ErrLedger, "ledger", op,
			fmt.Sprintf("%s %s returned %d: %s", method, path, status, truncate(data)), nil)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return services.Wrap(services.ErrLedger, "ledger", op, "decode response", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, op, method, path string, payload []byte, forceToken bool) (int, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, services.Wrap(services.ErrLedger, "ledger", op, "rate limiter", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, services.Wrap(services.ErrConfiguration, "ledger", op, "build request", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authenticated() {
		token, err := c.tokens.get(ctx, forceToken)
		if err != nil {
			return 0, nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		marker := services.ErrLedger
		if errors.Is(err, context.DeadlineExceeded) {
			marker = services.ErrTimeout
		}
		return 0, nil, services.Wrap(marker, "ledger", op, method+" "+path, errors.Join(services.ErrLedger, err))
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, services.Wrap(services.ErrLedger, "ledger", op, "read response", err)
	}
	return resp.StatusCode, data, nil
}

func (c *Client) fetchToken(ctx context.Context) (string, error) {
	payload, err := json.Marshal(c.credentials)
	if err != nil {
		return "", services.Wrap(services.ErrLedger, "ledger", "service token", "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+tokenPath, bytes.NewReader(payload))
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "ledger", "service token", "build request", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrLedger, "ledger", "service token", "login", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", services.Wrap(services.ErrLedger, "ledger", "service token",
			fmt.Sprintf("login returned %d: %s", resp.StatusCode, truncate(data)), nil)
	}
	var parsed tokenResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", services.Wrap(services.ErrLedger, "ledger", "service token", "decode response", err)
	}
	if parsed.AccessToken == "" {
		return "", services.Wrap(services.ErrLedger, "ledger", "service token", "response carried no access_token", nil)
	}
	return parsed.AccessToken, nil
}

func truncate(data []byte) string {
	text := strings.TrimSpace(string(data))
	if len(text) > maxErrorDetail {
		return text[:maxErrorDetail] + "..."
	}
	return text
}
