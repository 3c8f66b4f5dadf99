package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"stock-streamer/src/helpers"
	"stock-streamer/src/logger"
	"stock-streamer/src/models"
)

// AuthPath is the upstream authentication endpoint.
const AuthPath = "/api/Auth/Authorization"

// -----------------------------------------------------------------------------
// Session Manager
// -----------------------------------------------------------------------------

// Manager owns the credential and the current session. Token refresh is
// single-flight: concurrent callers share the outcome of the one
// in-flight authentication attempt instead of issuing duplicates.
type Manager struct {
	Config     models.MUpstreamConfig
	HttpClient *http.Client
	Logger     *logger.Logger
	Retry      helpers.RetryPolicy

	// Notify, if set, receives auth-state-changed notifications. It is
	// invoked outside the manager's lock.
	Notify func(models.MAuthStatus)

	mu       sync.Mutex
	session  models.MSession
	inflight *authCall
}

// authCall is one in-flight authentication attempt. Waiters block on
// done and read token/err afterwards.
type authCall struct {
	done  chan struct{}
	token string
	err   error
}

// -----------------------------------------------------------------------------

// NewManager creates a session manager around the given credential config.
func NewManager(cfg models.MUpstreamConfig, log *logger.Logger) *Manager {
	return &Manager{
		Config: cfg,
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

// AcquireToken returns a usable bearer token. With force=false a cached
// valid token is returned immediately without I/O. Otherwise one
// authentication attempt runs; concurrent callers (forced or not) join
// it and share its outcome.
func (m *Manager) AcquireToken(force bool) (string, error) {
	m.mu.Lock()

	if !force && m.session.Usable(time.Now()) {
		token := m.session.Token
		m.mu.Unlock()
		return token, nil
	}

	// Join the in-flight attempt if there is one. A burst of 401s from
	// the upstream client must collapse into a single auth request.
	if m.inflight != nil {
		call := m.inflight
		m.mu.Unlock()
		<-call.done
		return call.token, call.err
	}

	call := &authCall{done: make(chan struct{})}
	m.inflight = call
	m.session.State = models.SessionAuthenticating
	m.mu.Unlock()

	token, expiresAt, err := m.authenticate()

	m.mu.Lock()
	if err != nil {
		m.session = models.MSession{State: models.SessionUnauthenticated}
	} else {
		m.session = models.MSession{
			Token:     token,
			ExpiresAt: expiresAt,
			State:     models.SessionValid,
		}
	}
	m.inflight = nil
	m.mu.Unlock()

	call.token = token
	call.err = err
	close(call.done)

	m.emitStatus(err)
	return token, err
}

// -----------------------------------------------------------------------------

// Invalidate marks the session expired. The next AcquireToken performs
// a fresh authentication. Used on an explicit 401 from the data endpoint.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session.State == models.SessionValid {
		m.session.State = models.SessionExpired
	}
}

// -----------------------------------------------------------------------------

// TokenPresent reports whether a currently valid token is cached.
func (m *Manager) TokenPresent() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Usable(time.Now())
}

// -----------------------------------------------------------------------------

// State returns the current session state.
func (m *Manager) State() models.MSessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.State
}

// -----------------------------------------------------------------------------

func (m *Manager) emitStatus(err error) {
	if m.Notify == nil {
		return
	}
	status := models.MAuthStatus{
		Status:    "authenticated",
		Timestamp: time.Now().Unix(),
	}
	if err != nil {
		status.Status = "error"
		status.Error = err.Error()
	}
	m.Notify(status)
}

// -----------------------------------------------------------------------------
// Authentication
// -----------------------------------------------------------------------------

// authenticate submits the credential and extracts a token. Transient
// failures back off linearly (base * attempt) up to the bounded attempt
// count. Explicit rejections rotate to the next credential body shape
// without backoff; once every shape has been rejected the attempt fails
// with AllFormatsRejected.
func (m *Manager) authenticate() (string, time.Time, error) {
	bodies := credentialBodies(m.Config.Email, m.Config.Password)

	var lastErr error
	timeouts := 0
	rejected := 0
	format := 0

	for attempt := 1; attempt <= m.Retry.MaxAttempts; attempt++ {
		token, lifetime, status, err := m.postCredential(bodies[format%len(bodies)])

		if err != nil {
			// Transport failure: transient, includes per-call timeouts.
			lastErr = err
			if isTimeout(err) {
				timeouts++
			}
			m.Logger.Warning("Auth request failed (attempt %d/%d): %v",
				attempt, m.Retry.MaxAttempts, err)
			if attempt < m.Retry.MaxAttempts {
				time.Sleep(m.Retry.Delay(attempt))
			}
			continue
		}

		switch {
		case status == http.StatusOK:
			if token == "" {
				return "", time.Time{}, &helpers.AuthError{Kind: helpers.AuthNoTokenInResponse}
			}
			return token, m.expiry(lifetime), nil

		case status >= 400 && status < 500:
			// Explicit rejection: the shape was understood and refused.
			// Try the next known shape, no backoff.
			rejected++
			format++
			lastErr = fmt.Errorf("auth rejected with status %d", status)
			m.Logger.Warning("Credential format %d rejected (status %d)", format, status)
			if rejected >= len(bodies) {
				return "", time.Time{}, &helpers.AuthError{
					Kind:  helpers.AuthAllFormatsRejected,
					Cause: lastErr,
				}
			}

		default:
			// 5xx: transient server-side failure.
			lastErr = fmt.Errorf("auth failed with status %d", status)
			m.Logger.Warning("Auth request failed (attempt %d/%d): status %d",
				attempt, m.Retry.MaxAttempts, status)
			if attempt < m.Retry.MaxAttempts {
				time.Sleep(m.Retry.Delay(attempt))
			}
		}
	}

	if timeouts > 0 {
		return "", time.Time{}, &helpers.AuthError{Kind: helpers.AuthTimeout, Cause: lastErr}
	}
	return "", time.Time{}, &helpers.AuthError{
		Kind:    helpers.AuthAllFormatsRejected,
		Message: "authentication attempts exhausted",
		Cause:   lastErr,
	}
}

// -----------------------------------------------------------------------------

// expiry stores the token lifetime with a safety margin below what the
// provider granted, so we refresh before the provider-side cutoff.
func (m *Manager) expiry(providerLifetime time.Duration) time.Time {
	lifetime := providerLifetime
	if lifetime <= 0 {
		lifetime = time.Duration(m.Config.TokenLifetimeMin) * time.Minute
	}
	margin := time.Duration(m.Config.TokenSafetyMarginMin) * time.Minute
	if margin >= lifetime {
		margin = lifetime / 2
	}
	return time.Now().Add(lifetime - margin)
}

// -----------------------------------------------------------------------------

// postCredential performs one auth POST. Returns the probed token (may
// be empty on 200), the provider-reported lifetime (0 when absent) and
// the HTTP status.
func (m *Manager) postCredential(body map[string]string) (string, time.Duration, int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", 0, 0, err
	}

	req, err := http.NewRequest(http.MethodPost, m.Config.BaseURL+AuthPath, bytes.NewReader(payload))
	if err != nil {
		return "", 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := m.HttpClient.Do(req)
	if err != nil {
		return "", 0, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, resp.StatusCode, err
	}

	if resp.StatusCode != http.StatusOK {
		return "", 0, resp.StatusCode, nil
	}

	token, lifetime := probeToken(respBody)
	return token, lifetime, resp.StatusCode, nil
}

// -----------------------------------------------------------------------------
// Format tolerance
// -----------------------------------------------------------------------------

// credentialBodies lists the recognized request body shapes, tried in
// order when the upstream rejects one.
func credentialBodies(email, password string) []map[string]string {
	return []map[string]string{
		{"email": email, "password": password},
		{"Email": email, "Password": password},
		{"username": email, "password": password},
		{"userName": email, "passWord": password},
	}
}

// -----------------------------------------------------------------------------

// tokenKeys are the JSON keys a token is probed under, at the top level
// and inside the nested containers below.
var tokenKeys = []string{"token", "accessToken", "access_token", "authToken"}

// tokenContainers are nested objects searched for the token keys.
var tokenContainers = []string{"data", "result"}

// probeToken searches a successful auth response for a token across the
// recognized JSON shapes. Also extracts the provider token lifetime
// (expiresIn / expires_in, seconds) when present.
func probeToken(body []byte) (string, time.Duration) {
	var doc map[string]interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", 0
	}

	token := probeStringKeys(doc, tokenKeys)
	lifetime := probeLifetime(doc)

	if token == "" {
		for _, container := range tokenContainers {
			nested, ok := doc[container].(map[string]interface{})
			if !ok {
				continue
			}
			token = probeStringKeys(nested, tokenKeys)
			if lifetime == 0 {
				lifetime = probeLifetime(nested)
			}
			if token != "" {
				break
			}
		}
	}

	return token, lifetime
}

// -----------------------------------------------------------------------------

func probeStringKeys(doc map[string]interface{}, keys []string) string {
	for _, key := range keys {
		if v, ok := doc[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// -----------------------------------------------------------------------------

func probeLifetime(doc map[string]interface{}) time.Duration {
	for _, key := range []string{"expiresIn", "expires_in"} {
		if v, ok := doc[key].(float64); ok && v > 0 {
			return time.Duration(v) * time.Second
		}
	}
	return 0
}

// -----------------------------------------------------------------------------

// isTimeout reports whether the transport error was a per-call timeout.
// A timeout is treated like any other transient failure for retry
// purposes but is surfaced as AuthError{Timeout} on exhaustion.
func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
