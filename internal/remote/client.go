package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"concilia/internal/platform/metrics"
	id "concilia/pkg/domain"
	"concilia/pkg/platform/sentinel"
)

const (
	tableQueue       = "provisioning_queue"
	tableChecks      = "compliance_checks"
	tableSubmissions = "verification_submissions"
	tableAccounts    = "reseller_accounts"
	tableAccountCred = "account_credentials"

	terminalStatuses = "in.(approved,rejected,manual_review,error)"

	// undefined_column, the structured code the store returns when a query
	// references a column the collection does not carry
	pgUndefinedColumn = "42703"
	pgUniqueViolation = "23505"
)

// Client talks to one remote store over its REST interface.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	timeout time.Duration
	caps    Capabilities
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type ClientOption func(*Client)

func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.httpc = h }
}

// NewClient builds an unprobed client. Callers should Probe before first use
// so the capability contract is settled; the handle cache does this.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpc:   &http.Client{},
		timeout: 10 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Probe introspects the compliance collection once and caches which
// optional columns it carries.
func (c *Client) Probe(ctx context.Context) error {
	hasProcessed, err := c.probeColumn(ctx, "processado")
	if err != nil {
		return err
	}
	hasPhone, err := c.probeColumn(ctx, "telefone")
	if err != nil {
		return err
	}
	c.caps = Capabilities{HasProcessedFlag: hasProcessed, HasPhoneColumn: hasPhone}
	c.logger.Debug("remote store capabilities probed",
		"url", c.baseURL, "processed_flag", hasProcessed, "phone_column", hasPhone)
	return nil
}

func (c *Client) probeColumn(ctx context.Context, column string) (bool, error) {
	q := url.Values{}
	q.Set("select", column)
	q.Set("limit", "0")
	var out []json.RawMessage
	err := c.get(ctx, tableChecks, q, &out)
	if errors.Is(err, sentinel.ErrSchemaMismatch) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) Capabilities() Capabilities { return c.caps }

func (c *Client) ListPendingEvents(ctx context.Context, entityType string, limit int) ([]QueueEvent, error) {
	q := url.Values{}
	q.Set("status", "eq."+string(EventStatusPending))
	q.Set("entity_type", "eq."+entityType)
	q.Set("order", "created_at.asc")
	q.Set("limit", strconv.Itoa(limit))
	var events []QueueEvent
	if err := c.get(ctx, tableQueue, q, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *Client) MarkEvent(ctx context.Context, eventID id.EventID, status EventStatus) error {
	q := url.Values{}
	q.Set("id", "eq."+strconv.FormatInt(int64(eventID), 10))
	return c.patch(ctx, tableQueue, q, map[string]any{"status": string(status)})
}

func (c *Client) CreateAccount(ctx context.Context, acc NewAccount) (string, error) {
	var created []struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, tableAccounts, acc, &created); err != nil {
		return "", err
	}
	if len(created) == 0 {
		return "", fmt.Errorf("account created but store returned no representation")
	}
	return created[0].ID, nil
}

func (c *Client) UpsertAccountCredential(ctx context.Context, accountRef string, cred AccountCredential) error {
	body := map[string]any{
		"account_id": accountRef,
		"url":        cred.URL,
		"secret_key": cred.SecretKey,
	}
	return c.post(ctx, tableAccountCred, body, nil)
}

func (c *Client) ListUnprocessedChecks(ctx context.Context, limit int) ([]CheckRow, error) {
	if !c.caps.HasProcessedFlag || !c.caps.HasPhoneColumn {
		return nil, fmt.Errorf("%w: compliance collection lacks optional columns", sentinel.ErrSchemaMismatch)
	}
	q := url.Values{}
	q.Set("processado", "eq.false")
	q.Set("telefone", "not.is.null")
	q.Set("status", terminalStatuses)
	q.Set("order", "data_consulta.asc")
	q.Set("limit", strconv.Itoa(limit))
	var checks []CheckRow
	if err := c.get(ctx, tableChecks, q, &checks); err != nil {
		return nil, err
	}
	return checks, nil
}

func (c *Client) ListChecksMinimal(ctx context.Context, limit int) ([]CheckRow, error) {
	q := url.Values{}
	q.Set("select", "id,cpf,cpf_encrypted,status,check_id,data_consulta")
	q.Set("status", terminalStatuses)
	q.Set("order", "data_consulta.asc")
	q.Set("limit", strconv.Itoa(limit))
	var checks []CheckRow
	if err := c.get(ctx, tableChecks, q, &checks); err != nil {
		return nil, err
	}
	return checks, nil
}

func (c *Client) ListTerminalChecksSince(ctx context.Context, since time.Time, limit int) ([]CheckRow, error) {
	q := url.Values{}
	q.Set("status", terminalStatuses)
	q.Set("data_consulta", "gte."+since.UTC().Format(time.RFC3339))
	q.Set("order", "data_consulta.asc")
	q.Set("limit", strconv.Itoa(limit))
	var checks []CheckRow
	if err := c.get(ctx, tableChecks, q, &checks); err != nil {
		return nil, err
	}
	return checks, nil
}

func (c *Client) MarkCheckProcessed(ctx context.Context, checkID id.CheckID) error {
	if !c.caps.HasProcessedFlag {
		return fmt.Errorf("%w: compliance collection has no processed flag", sentinel.ErrSchemaMismatch)
	}
	q := url.Values{}
	q.Set("id", "eq."+strconv.FormatInt(int64(checkID), 10))
	return c.patch(ctx, tableChecks, q, map[string]any{"processado": true})
}

func (c *Client) FindSubmissionByNationalID(ctx context.Context, nationalID id.NationalID) (*SubmissionRow, error) {
	q := url.Values{}
	q.Set("cpf", "eq."+nationalID.String())
	q.Set("order", "created_at.desc")
	q.Set("limit", "1")
	var rows []SubmissionRow
	if err := c.get(ctx, tableSubmissions, q, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return &rows[0], nil
}

// --- transport -------------------------------------------------------------

func (c *Client) get(ctx context.Context, table string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, table, query, nil, out)
}

func (c *Client) patch(ctx context.Context, table string, query url.Values, body any) error {
	return c.do(ctx, http.MethodPatch, table, query, body, nil)
}

func (c *Client) post(ctx context.Context, table string, body, out any) error {
	return c.do(ctx, http.MethodPost, table, nil, body, out)
}

func (c *Client) do(ctx context.Context, method, table string, query url.Values, body, out any) error {
	start := time.Now()
	defer func() {
		if c.metrics != nil {
			c.metrics.RemoteCallDuration.WithLabelValues(method + " " + table).
				Observe(time.Since(start).Seconds())
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + "/rest/v1/" + table
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method == http.MethodPost && out != nil {
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", sentinel.ErrUnavailable, method, table, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", sentinel.ErrUnavailable, err)
	}

	if resp.StatusCode >= 400 {
		return c.classifyError(resp.StatusCode, payload)
	}

	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

type storeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// classifyError maps remote error responses onto sentinel errors using the
// structured error code, never the message text.
func (c *Client) classifyError(status int, payload []byte) error {
	var se storeError
	_ = json.Unmarshal(payload, &se)

	switch {
	case se.Code == pgUndefinedColumn:
		return fmt.Errorf("%w: %s", sentinel.ErrSchemaMismatch, se.Message)
	case se.Code == pgUniqueViolation || status == http.StatusConflict:
		return fmt.Errorf("%w: %s", sentinel.ErrConflict, se.Message)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: store rejected credentials (status %d)", sentinel.ErrPermissionDenied, status)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", sentinel.ErrNotFound, se.Message)
	case status >= 500:
		return fmt.Errorf("%w: store error (status %d)", sentinel.ErrUnavailable, status)
	default:
		return fmt.Errorf("remote store error (status %d, code %s): %s", status, se.Code, se.Message)
	}
}
