package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

const maxBodySize = 64 << 10

type connectRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type exchangeRequest struct {
	Code         string `json:"code"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RedirectURI  string `json:"redirect_uri"`
}

type testConnectionRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	AccessToken  string `json:"access_token"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res := s.facade.ConnectWithToken(r.Context(), req.AccessToken, req.RefreshToken, req.ClientID, req.ClientSecret)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleExchange(w http.ResponseWriter, r *http.Request) {
	var req exchangeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res := s.facade.ExchangeCode(r.Context(), req.Code, req.ClientID, req.ClientSecret, req.RedirectURI)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.facade.GetStatus())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.facade.Disconnect(r.Context()))
}

func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.facade.Reconnect(r.Context()))
}

func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	var req testConnectionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.facade.TestConnection(r.Context(), req.ClientID, req.ClientSecret, req.AccessToken))
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	videoID := r.PathValue("videoID")
	if videoID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing video id"})
		return
	}
	writeJSON(w, http.StatusOK, s.facade.GetTranscript(r.Context(), videoID))
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"result": s.facade.Ping()})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"uptime":     time.Since(s.started).Round(time.Second).String(),
		"connection": s.facade.GetStatus().Status,
		"ui_clients": s.hub.ClientCount(),
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

// decodeBody reads a JSON request body into v. An empty body leaves v zero.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v) //nolint:errcheck
}
