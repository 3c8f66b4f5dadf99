package upstream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"stock-streamer/src/helpers"
	"stock-streamer/src/logger"
	"stock-streamer/src/models"
	"stock-streamer/src/session"
)

// FetchPath is the upstream endpoint serving the full instrument list.
const FetchPath = "/api/CRM/GetAllStockCompany"

// errUnauthorized marks a 401 from the data endpoint. It is never
// retried inside the transport loop; the caller handles re-auth.
var errUnauthorized = errors.New("unauthorized")

// -----------------------------------------------------------------------------
// Upstream Client
// -----------------------------------------------------------------------------

// Client fetches the full instrument data set with bearer auth obtained
// from the session manager.
type Client struct {
	Config     models.MUpstreamConfig
	Session    *session.Manager
	HttpClient *http.Client
	Logger     *logger.Logger
	Retry      helpers.RetryPolicy
}

// -----------------------------------------------------------------------------

// NewClient creates an upstream client bound to a session manager.
func NewClient(cfg models.MUpstreamConfig, sess *session.Manager, log *logger.Logger) *Client {
	return &Client{
		Config:  cfg,
		Session: sess,
		HttpClient: &http.Client{
			Timeout: time.Duration(cfg.RequestTimeout) * time.Second,
		},
		Logger: log,
		Retry: helpers.RetryPolicy{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond,
		},
	}
}

// -----------------------------------------------------------------------------

// FetchAll fetches the complete record set as an immutable snapshot.
// On a 401 the session is invalidated, one forced re-authentication
// runs and the fetch is retried exactly once; a second rejection
// surfaces FetchError{AuthRejected}.
func (c *Client) FetchAll() (*models.MSnapshot, error) {
	token, err := c.Session.AcquireToken(false)
	if err != nil {
		return nil, err
	}

	body, err := c.fetchWithRetry(token)
	if errors.Is(err, errUnauthorized) {
		c.Logger.Info("Fetch rejected with 401, forcing re-authentication")
		c.Session.Invalidate()

		token, err = c.Session.AcquireToken(true)
		if err != nil {
			return nil, err
		}

		body, err = c.fetchWithRetry(token)
		if errors.Is(err, errUnauthorized) {
			return nil, &helpers.FetchError{
				Kind:    helpers.FetchAuthRejected,
				Message: "fetch rejected again after forced re-authentication",
			}
		}
	}
	if err != nil {
		return nil, &helpers.FetchError{Kind: helpers.FetchUnavailable, Cause: err}
	}

	records, err := normalizeRecords(body)
	if err != nil {
		return nil, err
	}

	return models.NewSnapshot(records, time.Now()), nil
}

// -----------------------------------------------------------------------------

// fetchWithRetry runs the data GET under the shared retry policy.
// Transient failures (transport errors, 5xx, per-call timeouts) back
// off and retry; a 401 is returned to the caller immediately.
func (c *Client) fetchWithRetry(token string) ([]byte, error) {
	var body []byte

	retryable := func(err error) bool {
		return !errors.Is(err, errUnauthorized)
	}

	err := c.Retry.Do("fetch stock companies", c.Logger, retryable, func() error {
		b, status, err := c.doFetch(token)
		if err != nil {
			return err
		}
		switch {
		case status == http.StatusOK:
			body = b
			return nil
		case status == http.StatusUnauthorized:
			return errUnauthorized
		default:
			return fmt.Errorf("bad status: %d", status)
		}
	})
	if err != nil {
		return nil, err
	}

	return body, nil
}

// -----------------------------------------------------------------------------

func (c *Client) doFetch(token string) ([]byte, int, error) {
	req, err := http.NewRequest(http.MethodGet, c.Config.BaseURL+FetchPath, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HttpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	return body, resp.StatusCode, nil
}

// -----------------------------------------------------------------------------
// Normalization
// -----------------------------------------------------------------------------

// normalizeRecords decodes the upstream payload into an ordered record
// sequence. The upstream serves either a raw array or a single object;
// a single object is wrapped into a one-element sequence. Indicators
// are derived here, never taken from the payload.
func normalizeRecords(body []byte) ([]models.MStockRecord, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, &helpers.FetchError{
			Kind:    helpers.FetchMalformedResponse,
			Message: "empty response body",
		}
	}

	var records []models.MStockRecord
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, &helpers.FetchError{Kind: helpers.FetchMalformedResponse, Cause: err}
		}
	} else {
		var single models.MStockRecord
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return nil, &helpers.FetchError{Kind: helpers.FetchMalformedResponse, Cause: err}
		}
		records = []models.MStockRecord{single}
	}

	if len(records) == 0 {
		return nil, &helpers.FetchError{
			Kind:    helpers.FetchMalformedResponse,
			Message: "response contained no records",
		}
	}

	out := records[:0]
	for _, r := range records {
		if r.TradingCode == "" {
			continue
		}
		r.DeriveIndicator()
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil, &helpers.FetchError{
			Kind:    helpers.FetchMalformedResponse,
			Message: "response contained no usable records",
		}
	}

	return out, nil
}
