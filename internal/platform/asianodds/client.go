// Package asianodds is the REST client for the AsianOdds sportsbook
// aggregator API.
//
// The API uses a two-step session: Login returns a token, key and a
// user-specific service URL, and Register must be called against that URL
// within 60 seconds. Sessions idle out after roughly four minutes, so every
// successful call refreshes a last-activity watermark and stale sessions are
// re-checked with IsLoggedIn before use.
package asianodds

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/awestray/backlay/internal/domain"
)

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://webapi.asianodds88.com/AsianOddsService"

// Market type IDs accepted by the feeds and placement endpoints.
const (
	MarketLive  = 0
	MarketToday = 1
	MarketEarly = 2
)

// Sports type IDs.
const (
	SportSoccer     = 1
	SportBasketball = 2
	SportMMA        = 9
)

// OddsFormatDecimal requests decimal (European) prices.
const OddsFormatDecimal = "00"

// sessionTimeout is how long a session survives without activity. The API
// cuts sessions at five minutes; staying a minute inside that keeps a
// re-check from racing the server.
const sessionTimeout = 240 * time.Second

// codeAuthExpired is the API status code for an invalid or expired token.
const codeAuthExpired = -4

// Client-side request throttle. The API tolerates frequent feed polling but
// bans accounts that hammer it; five requests a second stays well clear.
const (
	defaultRateLimit = 5
	defaultRateBurst = 5
)

// Client is the REST client for the AsianOdds API. It is safe for concurrent
// use; session state is internally synchronized.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	limiter    *rate.Limiter

	mu         sync.Mutex
	token      string
	key        string
	serviceURL string
	lastActive time.Time
}

// NewClient creates a new AsianOdds client. baseURL falls back to
// DefaultBaseURL when empty.
func NewClient(baseURL, username, password string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:  baseURL,
		username: username,
		password: password,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(defaultRateLimit), defaultRateBurst),
	}
}

// apiResponse is the uniform envelope every endpoint returns.
type apiResponse struct {
	Code   int             `json:"Code"`
	Result json.RawMessage `json:"Result"`
}

// textMessage digs the human-readable error out of a Result payload.
func textMessage(result json.RawMessage) string {
	var res struct {
		TextMessage string `json:"TextMessage"`
	}
	if err := json.Unmarshal(result, &res); err != nil {
		return ""
	}
	return res.TextMessage
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Login performs the login + register handshake and stores the session.
func (c *Client) Login(ctx context.Context) error {
	params := url.Values{}
	params.Set("username", c.username)
	// The API requires the MD5 hex digest of the password, not the password.
	params.Set("password", md5Hex(c.password))

	body, err := c.doRaw(ctx, http.MethodGet, c.baseURL+"/Login", params, nil, "", "")
	if err != nil {
		return fmt.Errorf("asianodds: login: %w", err)
	}

	var env apiResponse
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("asianodds: decode login: %w", err)
	}
	if env.Code != 0 {
		return fmt.Errorf("asianodds: login failed: code=%d message=%s", env.Code, textMessage(env.Result))
	}

	var res struct {
		Token string `json:"Token"`
		Key   string `json:"Key"`
		URL   string `json:"Url"`
	}
	if err := json.Unmarshal(env.Result, &res); err != nil {
		return fmt.Errorf("asianodds: decode login result: %w", err)
	}
	if res.Token == "" || res.Key == "" {
		return fmt.Errorf("asianodds: login returned empty session")
	}

	serviceURL := res.URL
	if serviceURL == "" {
		serviceURL = c.baseURL
	}

	// Register must land within 60 seconds of login, against the service URL
	// the login handed back.
	regParams := url.Values{}
	regParams.Set("username", c.username)
	regBody, err := c.doRaw(ctx, http.MethodGet, serviceURL+"/Register", regParams, nil, res.Token, res.Key)
	if err != nil {
		return fmt.Errorf("asianodds: register: %w", err)
	}
	var regEnv apiResponse
	if err := json.Unmarshal(regBody, &regEnv); err != nil {
		return fmt.Errorf("asianodds: decode register: %w", err)
	}
	if regEnv.Code != 0 {
		return fmt.Errorf("asianodds: register failed: code=%d message=%s", regEnv.Code, textMessage(regEnv.Result))
	}

	c.mu.Lock()
	c.token = res.Token
	c.key = res.Key
	c.serviceURL = serviceURL
	c.lastActive = time.Now()
	c.mu.Unlock()

	return nil
}

// session returns the current session triple.
func (c *Client) session() (token, key, serviceURL string, lastActive time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, c.key, c.serviceURL, c.lastActive
}

func (c *Client) clearSession() {
	c.mu.Lock()
	c.token = ""
	c.key = ""
	c.mu.Unlock()
}

func (c *Client) touch() {
	c.mu.Lock()
	c.lastActive = time.Now()
	c.mu.Unlock()
}

// ensureAuthenticated logs in when there is no session and revalidates
// sessions that have been idle past the timeout.
func (c *Client) ensureAuthenticated(ctx context.Context) error {
	token, _, _, lastActive := c.session()
	if token == "" {
		return c.Login(ctx)
	}
	if time.Since(lastActive) > sessionTimeout {
		if err := c.checkLoggedIn(ctx); err != nil {
			c.clearSession()
			return c.Login(ctx)
		}
	}
	return nil
}

// checkLoggedIn probes the session with IsLoggedIn.
func (c *Client) checkLoggedIn(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "IsLoggedIn", nil, nil)
	return err
}

// RunKeepAlive pings the session on the given interval until the context is
// cancelled, re-authenticating when the session has lapsed. It is meant to be
// run as a goroutine in modes that do not already poll the feeds.
func (c *Client) RunKeepAlive(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.ensureAuthenticated(ctx); err != nil {
				return fmt.Errorf("asianodds: keep-alive: %w", err)
			}
			if err := c.checkLoggedIn(ctx); err != nil {
				c.clearSession()
				if err := c.Login(ctx); err != nil {
					return fmt.Errorf("asianodds: keep-alive relogin: %w", err)
				}
			}
		}
	}
}

// call sends an authenticated request, retrying once through a fresh login
// when the API reports the token expired.
func (c *Client) call(ctx context.Context, method, endpoint string, params url.Values, reqBody any) (json.RawMessage, error) {
	if err := c.ensureAuthenticated(ctx); err != nil {
		return nil, err
	}

	result, err := c.do(ctx, method, endpoint, params, reqBody)
	if err == nil {
		return result, nil
	}
	if !errors.Is(err, domain.ErrAuthExpired) {
		return nil, err
	}

	c.clearSession()
	if err := c.Login(ctx); err != nil {
		return nil, err
	}
	return c.do(ctx, method, endpoint, params, reqBody)
}

// do sends one request with the current session headers and unwraps the
// response envelope.
func (c *Client) do(ctx context.Context, method, endpoint string, params url.Values, reqBody any) (json.RawMessage, error) {
	token, key, serviceURL, _ := c.session()
	base := serviceURL
	if base == "" {
		base = c.baseURL
	}

	body, err := c.doRaw(ctx, method, base+"/"+endpoint, params, reqBody, token, key)
	if err != nil {
		return nil, fmt.Errorf("asianodds: %s: %w", endpoint, err)
	}

	var env apiResponse
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("asianodds: decode %s: %w", endpoint, err)
	}
	if env.Code == codeAuthExpired {
		return nil, fmt.Errorf("asianodds: %s: %w", endpoint, domain.ErrAuthExpired)
	}
	if env.Code != 0 {
		return nil, fmt.Errorf("asianodds: %s failed: code=%d message=%s", endpoint, env.Code, textMessage(env.Result))
	}

	c.touch()
	return env.Result, nil
}

// doRaw performs the HTTP round trip and strips the UTF-8 BOM some endpoints
// prepend to their JSON.
func (c *Client) doRaw(ctx context.Context, method, fullURL string, params url.Values, reqBody any, token, key string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("AOToken", token)
	}
	if key != "" {
		req.Header.Set("AOKey", key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(respBody, 200))
	}

	return bytes.TrimPrefix(respBody, []byte("\xef\xbb\xbf")), nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
