// Package provider is the UI-facing surface of the bridge. Every operation
// returns a JSON-ready result; errors never cross this boundary.
package provider

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Fo4Ik-git/StreamPlayer/internal/bridge"
	"github.com/Fo4Ik-git/StreamPlayer/internal/constants"
	"github.com/Fo4Ik-git/StreamPlayer/internal/logger"
	"github.com/Fo4Ik-git/StreamPlayer/internal/model"
	"github.com/Fo4Ik-git/StreamPlayer/internal/transcript"
)

// Bridge is the controller surface the facade drives.
type Bridge interface {
	ConnectWithToken(ctx context.Context, accessToken, refreshToken, clientID, clientSecret string) bridge.ConnectResult
	ExchangeCode(ctx context.Context, code, clientID, clientSecret, redirectURI string) bridge.ConnectResult
	Reconnect(ctx context.Context) bridge.ConnectResult
	Disconnect(ctx context.Context) error
	StatusUpdate() model.StatusUpdate
	Identity() (model.Identity, bool)
}

// TranscriptFetcher fetches video transcripts.
type TranscriptFetcher interface {
	Fetch(ctx context.Context, videoID string) (string, error)
}

// IdentityFetcher validates an access token without connecting.
type IdentityFetcher interface {
	FetchUserIdentity(ctx context.Context, accessToken string) (model.Identity, error)
}

// Defaults fill in credentials the UI leaves empty.
type Defaults struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// ConnectResult answers connect, exchange and reconnect calls.
type ConnectResult struct {
	Success      bool   `json:"success"`
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	UserID       string `json:"user_id,omitempty"`
	UserName     string `json:"user_name,omitempty"`
	Message      string `json:"message,omitempty"`
}

// StatusResult answers GetStatus.
type StatusResult struct {
	Status   string `json:"status"`
	UserID   string `json:"user_id,omitempty"`
	UserName string `json:"user_name,omitempty"`
}

// Result is a plain success flag with an optional message.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// TranscriptResult answers GetTranscript.
type TranscriptResult struct {
	Success    bool   `json:"success"`
	Transcript string `json:"transcript,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Provider is the facade. It holds no connection state of its own.
type Provider struct {
	bridge      Bridge
	transcripts TranscriptFetcher
	identity    IdentityFetcher
	defaults    Defaults
	log         *logger.Logger
}

// New creates a Provider.
func New(b Bridge, transcripts TranscriptFetcher, identity IdentityFetcher, defaults Defaults, log *logger.Logger) *Provider {
	if defaults.RedirectURI == "" {
		defaults.RedirectURI = constants.DefaultRedirectURI
	}
	return &Provider{
		bridge:      b,
		transcripts: transcripts,
		identity:    identity,
		defaults:    defaults,
		log:         log,
	}
}

// ConnectWithToken connects with an existing access token.
func (p *Provider) ConnectWithToken(ctx context.Context, accessToken, refreshToken, clientID, clientSecret string) ConnectResult {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return ConnectResult{Message: "access token is required"}
	}
	refreshToken = strings.TrimSpace(refreshToken)
	clientID, clientSecret = p.client(clientID, clientSecret)

	res := p.bridge.ConnectWithToken(ctx, accessToken, refreshToken, clientID, clientSecret)
	out := fromBridge(res)
	if res.Success {
		out.AccessToken = accessToken
		out.RefreshToken = refreshToken
	}
	return out
}

// ExchangeCode trades an OAuth code for tokens and connects. The tokens are
// returned so the UI can persist them.
func (p *Provider) ExchangeCode(ctx context.Context, code, clientID, clientSecret, redirectURI string) ConnectResult {
	code = strings.TrimSpace(code)
	if code == "" {
		return ConnectResult{Message: "authorization code is required"}
	}
	clientID, clientSecret = p.client(clientID, clientSecret)
	if clientID == "" || clientSecret == "" {
		return ConnectResult{Message: "client id and client secret are required"}
	}
	if redirectURI == "" {
		redirectURI = p.defaults.RedirectURI
	}

	res := p.bridge.ExchangeCode(ctx, code, clientID, clientSecret, redirectURI)
	out := fromBridge(res)
	if res.Tokens != nil {
		out.AccessToken = res.Tokens.AccessToken
		out.RefreshToken = res.Tokens.RefreshToken
		out.ExpiresIn = res.Tokens.ExpiresIn
	}
	return out
}

// Reconnect reconnects with the credentials of the last successful connect.
func (p *Provider) Reconnect(ctx context.Context) ConnectResult {
	return fromBridge(p.bridge.Reconnect(ctx))
}

// GetStatus reports the external connection status. Handshake sub-states
// are reported as connecting.
func (p *Provider) GetStatus() StatusResult {
	out := StatusResult{Status: p.bridge.StatusUpdate().Status}
	if id, ok := p.bridge.Identity(); ok {
		out.UserID = id.UserID
		out.UserName = id.UserName
	}
	return out
}

// Disconnect closes the connection.
func (p *Provider) Disconnect(ctx context.Context) Result {
	if err := p.bridge.Disconnect(ctx); err != nil {
		p.log.Error("Disconnect failed", "error", err)
		return Result{Message: err.Error()}
	}
	return Result{Success: true, Message: "Disconnected"}
}

// GetTranscript fetches the transcript of a YouTube video.
func (p *Provider) GetTranscript(ctx context.Context, videoID string) TranscriptResult {
	if p.transcripts == nil {
		return TranscriptResult{Message: "transcripts are not available"}
	}
	text, err := p.transcripts.Fetch(ctx, strings.TrimSpace(videoID))
	if err != nil {
		return TranscriptResult{Message: transcriptMessage(err)}
	}
	return TranscriptResult{Success: true, Transcript: text}
}

// Ping answers liveness checks from the UI.
func (p *Provider) Ping() string {
	return "pong"
}

// TestConnection checks that credentials are usable without connecting. An
// access token, when given, is validated against the API.
func (p *Provider) TestConnection(ctx context.Context, clientID, clientSecret, accessToken string) Result {
	clientID, clientSecret = p.client(clientID, clientSecret)
	if clientID == "" || clientSecret == "" {
		return Result{Message: "client id and client secret are required"}
	}
	if accessToken == "" || p.identity == nil {
		return Result{Success: true, Message: "Ready to connect"}
	}

	ctx, cancel := context.WithTimeout(ctx, constants.DefaultHTTPTimeout)
	defer cancel()
	start := time.Now()
	id, err := p.identity.FetchUserIdentity(ctx, accessToken)
	if err != nil {
		p.log.Warn("Connection test failed", "error", err)
		return Result{Message: err.Error()}
	}
	p.log.Debug("Connection test passed", "user", id.UserName, "took", time.Since(start))
	return Result{Success: true, Message: "Token is valid for " + id.UserName}
}

func (p *Provider) client(id, secret string) (string, string) {
	id, secret = strings.TrimSpace(id), strings.TrimSpace(secret)
	if id == "" {
		id = p.defaults.ClientID
	}
	if secret == "" {
		secret = p.defaults.ClientSecret
	}
	return id, secret
}

func fromBridge(res bridge.ConnectResult) ConnectResult {
	return ConnectResult{
		Success:  res.Success,
		UserID:   res.UserID,
		UserName: res.UserName,
		Message:  res.Message,
	}
}

// transcriptMessage maps fetch errors to the messages the UI shows.
func transcriptMessage(err error) string {
	switch {
	case errors.Is(err, transcript.ErrTranscriptsDisabled):
		return "Subtitles are disabled"
	case errors.Is(err, transcript.ErrNoTranscript):
		return "No transcript found for requested languages"
	default:
		return err.Error()
	}
}
