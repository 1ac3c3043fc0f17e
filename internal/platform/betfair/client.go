// Package betfair is the REST client for the Betfair Exchange API.
//
// Authentication uses the certificate login endpoint: the session is obtained
// by presenting a TLS client certificate registered with the account, then
// kept warm with the keep-alive endpoint. Betting calls go to the JSON REST
// interface with the app key and session token as headers.
package betfair

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/awestray/backlay/internal/domain"
)

// Default endpoints.
const (
	DefaultLoginURL     = "https://identitysso-cert.betfair.com/api/certlogin"
	DefaultKeepAliveURL = "https://identitysso.betfair.com/api/keepAlive"
	DefaultAPIURL       = "https://api.betfair.com/exchange/betting/rest/v1.0"
)

// Event type IDs for the sports this system trades.
const (
	EventTypeSoccer     = "1"
	EventTypeTennis     = "2"
	EventTypeBasketball = "7522"
)

// Config carries everything needed to build a Client.
type Config struct {
	AppKey   string
	Username string
	Password string

	// CertFile and KeyFile are the PEM pair registered with the account for
	// certificate login.
	CertFile string
	KeyFile  string

	LoginURL     string
	KeepAliveURL string
	APIURL       string
}

// Client is the REST client for the Betfair Exchange API. It is safe for
// concurrent use; the session token is internally synchronized.
type Client struct {
	cfg Config

	// loginClient presents the TLS client certificate; apiClient is plain.
	loginClient *http.Client
	apiClient   *http.Client

	mu    sync.Mutex
	token string
}

// New creates a Client, loading the TLS certificate pair for login.
func New(cfg Config) (*Client, error) {
	if cfg.LoginURL == "" {
		cfg.LoginURL = DefaultLoginURL
	}
	if cfg.KeepAliveURL == "" {
		cfg.KeepAliveURL = DefaultKeepAliveURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("betfair: load client certificate: %w", err)
	}

	return &Client{
		cfg: cfg,
		loginClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					Certificates: []tls.Certificate{cert},
					MinVersion:   tls.VersionTLS12,
				},
			},
		},
		apiClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Login obtains a fresh session token via certificate login.
func (c *Client) Login(ctx context.Context) error {
	form := url.Values{}
	form.Set("username", c.cfg.Username)
	form.Set("password", c.cfg.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.LoginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("betfair: create login request: %w", err)
	}
	req.Header.Set("X-Application", c.cfg.AppKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.loginClient.Do(req)
	if err != nil {
		return fmt.Errorf("betfair: login request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("betfair: read login response: %w", err)
	}

	var res struct {
		SessionToken string `json:"sessionToken"`
		LoginStatus  string `json:"loginStatus"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return fmt.Errorf("betfair: decode login response: %w", err)
	}
	if res.LoginStatus != "SUCCESS" || res.SessionToken == "" {
		return fmt.Errorf("betfair: login failed: %s", res.LoginStatus)
	}

	c.mu.Lock()
	c.token = res.SessionToken
	c.mu.Unlock()
	return nil
}

// KeepAlive extends the current session. It fails with domain.ErrAuthExpired
// when the session is no longer valid.
func (c *Client) KeepAlive(ctx context.Context) error {
	token := c.sessionToken()
	if token == "" {
		return domain.ErrAuthExpired
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.KeepAliveURL, nil)
	if err != nil {
		return fmt.Errorf("betfair: create keep-alive request: %w", err)
	}
	req.Header.Set("X-Application", c.cfg.AppKey)
	req.Header.Set("X-Authentication", token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.apiClient.Do(req)
	if err != nil {
		return fmt.Errorf("betfair: keep-alive request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("betfair: read keep-alive response: %w", err)
	}

	var res struct {
		Status string `json:"status"`
		Error  string `json:"error"`
		Token  string `json:"token"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return fmt.Errorf("betfair: decode keep-alive response: %w", err)
	}
	if res.Status != "SUCCESS" {
		return fmt.Errorf("betfair: keep-alive failed: %s: %w", res.Error, domain.ErrAuthExpired)
	}

	if res.Token != "" {
		c.mu.Lock()
		c.token = res.Token
		c.mu.Unlock()
	}
	return nil
}

// RunKeepAlive keeps the session warm on the given interval until the
// context is cancelled, logging in again when the session lapses.
func (c *Client) RunKeepAlive(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.KeepAlive(ctx); err != nil {
				if !errors.Is(err, domain.ErrAuthExpired) {
					return err
				}
				if err := c.Login(ctx); err != nil {
					return fmt.Errorf("betfair: keep-alive relogin: %w", err)
				}
			}
		}
	}
}

func (c *Client) sessionToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Client) clearSession() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// invoke calls one betting method, logging in first when there is no
// session and retrying once through a fresh login on session expiry.
func (c *Client) invoke(ctx context.Context, method string, reqBody, out any) error {
	if c.sessionToken() == "" {
		if err := c.Login(ctx); err != nil {
			return err
		}
	}

	err := c.doBetting(ctx, method, reqBody, out)
	if err == nil || !errors.Is(err, domain.ErrAuthExpired) {
		return err
	}

	c.clearSession()
	if err := c.Login(ctx); err != nil {
		return err
	}
	return c.doBetting(ctx, method, reqBody, out)
}

// apiFault is the error envelope the betting API returns on failure.
type apiFault struct {
	FaultCode   string `json:"faultCode"`
	FaultString string `json:"faultstring"`
	Detail      struct {
		APINGException struct {
			ErrorCode string `json:"errorCode"`
		} `json:"APINGException"`
	} `json:"detail"`
}

func (c *Client) doBetting(ctx context.Context, method string, reqBody, out any) error {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("betfair: marshal %s request: %w", method, err)
	}

	fullURL := c.cfg.APIURL + "/" + method + "/"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, strings.NewReader(string(jsonBody)))
	if err != nil {
		return fmt.Errorf("betfair: create %s request: %w", method, err)
	}
	req.Header.Set("X-Application", c.cfg.AppKey)
	req.Header.Set("X-Authentication", c.sessionToken())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.apiClient.Do(req)
	if err != nil {
		return fmt.Errorf("betfair: %s request: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("betfair: read %s response: %w", method, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var fault apiFault
		_ = json.Unmarshal(body, &fault)
		errCode := fault.Detail.APINGException.ErrorCode
		if errCode == "INVALID_SESSION_INFORMATION" || errCode == "NO_SESSION" {
			return fmt.Errorf("betfair: %s: session invalid: %w", method, domain.ErrAuthExpired)
		}
		if errCode == "" {
			errCode = fault.FaultString
		}
		return fmt.Errorf("betfair: %s: HTTP %d: %s", method, resp.StatusCode, errCode)
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("betfair: decode %s response: %w", method, err)
		}
	}
	return nil
}
