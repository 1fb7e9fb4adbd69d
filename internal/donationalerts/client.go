// Package donationalerts is the HTTP side channel to the DonationAlerts REST
// API: OAuth token exchange and refresh, user identity lookup, and
// Centrifugo channel subscription tokens.
package donationalerts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/tidwall/gjson"

	"github.com/Fo4Ik-git/StreamPlayer/internal/constants"
	"github.com/Fo4Ik-git/StreamPlayer/internal/logger"
	"github.com/Fo4Ik-git/StreamPlayer/internal/metrics"
	"github.com/Fo4Ik-git/StreamPlayer/internal/model"
)

const (
	breakerName     = "donationalerts-api"
	maxResponseSize = 1 << 20

	endpointToken     = "token"
	endpointUser      = "user"
	endpointSubscribe = "subscribe"
)

// Client talks to the DonationAlerts REST API. All errors wrap one of the
// model error classes. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker[[]byte]
	log        *logger.Logger

	apiTimeout   time.Duration
	tokenTimeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeouts overrides the per-request timeouts for API and token calls.
func WithTimeouts(api, token time.Duration) Option {
	return func(c *Client) {
		c.apiTimeout = api
		c.tokenTimeout = token
	}
}

// NewClient creates a Client for the API at baseURL.
func NewClient(baseURL string, log *logger.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		log:          log,
		apiTimeout:   constants.DefaultHTTPTimeout,
		tokenTimeout: constants.TokenExchangeTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	c.cb = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Rejected credentials and missing channels are answers, not outages.
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, model.ErrNetwork)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return c
}

// ExchangeCode trades an OAuth authorization code for tokens.
func (c *Client) ExchangeCode(ctx context.Context, code, clientID, clientSecret, redirectURI string) (model.TokenSet, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"redirect_uri":  {redirectURI},
		"code":          {code},
	}
	return c.requestToken(ctx, form)
}

// RefreshToken obtains a new access token. When the response carries no new
// refresh token the old one is kept.
func (c *Client) RefreshToken(ctx context.Context, refreshToken, clientID, clientSecret string) (model.TokenSet, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"scope":         {constants.RefreshScopes},
	}
	tokens, err := c.requestToken(ctx, form)
	if err != nil {
		return model.TokenSet{}, err
	}
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = refreshToken
	}
	return tokens, nil
}

func (c *Client) requestToken(ctx context.Context, form url.Values) (model.TokenSet, error) {
	ctx, cancel := context.WithTimeout(ctx, c.tokenTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+constants.TokenPath,
		strings.NewReader(form.Encode()))
	if err != nil {
		return model.TokenSet{}, fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	body, err := c.do(endpointToken, req)
	if err != nil {
		return model.TokenSet{}, err
	}

	var tokens model.TokenSet
	if err := json.Unmarshal(body, &tokens); err != nil {
		return model.TokenSet{}, c.fail(endpointToken, fmt.Errorf("%w: parsing token response: %w", model.ErrProtocol, err))
	}
	if tokens.AccessToken == "" {
		return model.TokenSet{}, c.fail(endpointToken, fmt.Errorf("%w: token response missing access_token", model.ErrProtocol))
	}
	return tokens, nil
}

// FetchUserIdentity returns the user behind accessToken together with the
// socket connection token.
func (c *Client) FetchUserIdentity(ctx context.Context, accessToken string) (model.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, c.apiTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+constants.UserOAuthPath, nil)
	if err != nil {
		return model.Identity{}, fmt.Errorf("creating user request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	body, err := c.do(endpointUser, req)
	if err != nil {
		return model.Identity{}, err
	}

	data := gjson.GetBytes(body, "data")
	identity := model.Identity{
		UserID:      data.Get("id").String(),
		UserName:    data.Get("name").String(),
		SocketToken: data.Get("socket_connection_token").String(),
	}
	if identity.UserID == "" || identity.SocketToken == "" {
		return model.Identity{}, c.fail(endpointUser, fmt.Errorf("%w: user response missing id or socket_connection_token", model.ErrProtocol))
	}
	return identity, nil
}

type subscribeRequest struct {
	Client   string   `json:"client"`
	Channels []string `json:"channels"`
}

// SubscribeToken requests a subscription token for channel on behalf of the
// connected Centrifugo client. Only a token issued for exactly channel is
// accepted; anything else is model.ErrNotFound.
func (c *Client) SubscribeToken(ctx context.Context, accessToken, client, channel string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.apiTimeout)
	defer cancel()

	payload, err := json.Marshal(subscribeRequest{Client: client, Channels: []string{channel}})
	if err != nil {
		return "", fmt.Errorf("encoding subscribe request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+constants.CentrifugeSubscribePath,
		bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating subscribe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	body, err := c.do(endpointSubscribe, req)
	if err != nil {
		return "", err
	}

	var token string
	gjson.GetBytes(body, "channels").ForEach(func(_, ch gjson.Result) bool {
		if ch.Get("channel").String() == channel {
			token = ch.Get("token").String()
			return false
		}
		return true
	})
	if token == "" {
		return "", c.fail(endpointSubscribe, fmt.Errorf("%w: no subscription token for channel %s", model.ErrNotFound, channel))
	}
	return token, nil
}

// do sends req through the circuit breaker and returns the body of a 2xx
// response. Non-2xx statuses are mapped onto the model error classes.
func (c *Client) do(endpoint string, req *http.Request) ([]byte, error) {
	body, err := c.cb.Execute(func() ([]byte, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %s request: %w", model.ErrNetwork, endpoint, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s response: %w", model.ErrNetwork, endpoint, err)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return body, nil
		}
		return nil, statusError(endpoint, resp.StatusCode, body)
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.APIRequests.WithLabelValues(endpoint, "rejected").Inc()
			return nil, fmt.Errorf("%w: %s request rejected: %w", model.ErrNetwork, endpoint, err)
		}
		return nil, c.fail(endpoint, err)
	}

	metrics.APIRequests.WithLabelValues(endpoint, "ok").Inc()
	return body, nil
}

func (c *Client) fail(endpoint string, err error) error {
	metrics.APIRequests.WithLabelValues(endpoint, model.ErrorClass(err)).Inc()
	return err
}

func statusError(endpoint string, status int, body []byte) error {
	detail := gjson.GetBytes(body, "message").String()
	if detail == "" {
		detail = gjson.GetBytes(body, "error").String()
	}
	if detail == "" {
		detail = strings.TrimSpace(string(body))
		if len(detail) > 200 {
			detail = detail[:200]
		}
	}

	var class error
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnauthorized, status == http.StatusForbidden:
		class = model.ErrAuth
	case status == http.StatusNotFound:
		class = model.ErrNotFound
	case status == http.StatusTooManyRequests, status >= 500:
		class = model.ErrNetwork
	default:
		class = model.ErrProtocol
	}
	return fmt.Errorf("%w: %s returned HTTP %d: %s", class, endpoint, status, detail)
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
