// Package centrifugo encodes the client frames and classifies the server
// frames of the Centrifugo JSON protocol spoken by the DonationAlerts
// real-time endpoint. It holds no state.
package centrifugo

import (
	"fmt"

	"github.com/Fo4Ik-git/StreamPlayer/internal/constants"
)

// Kind classifies a decoded server frame.
type Kind int

const (
	// KindEmpty is a "{}" or blank keepalive.
	KindEmpty Kind = iota
	// KindReply answers a client request and carries its id.
	KindReply
	// KindPublish is a channel publication pushed by the server.
	KindPublish
	// KindMalformed is anything that failed to parse or has no known shape.
	KindMalformed
)

// String returns the lowercase name of the kind, used as a metrics label.
func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindReply:
		return "reply"
	case KindPublish:
		return "publish"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Frame is one decoded server frame. Which fields are set depends on Kind:
// Reply sets ID, Result and Error; Publish sets Result; Malformed sets Err.
// Raw is always the undecoded payload.
type Frame struct {
	Kind   Kind
	ID     uint32
	Result map[string]any
	Error  *ReplyError
	Raw    []byte
	Err    error
}

// ReplyError is the error object of a failed reply.
type ReplyError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("centrifugo error %d: %s", e.Code, e.Message)
}

type authParams struct {
	Token string `json:"token"`
}

type authRequest struct {
	Params authParams `json:"params"`
	ID     uint32     `json:"id"`
}

type subscribeParams struct {
	Channel string `json:"channel"`
	Token   string `json:"token"`
}

type subscribeRequest struct {
	Params subscribeParams `json:"params"`
	Method int             `json:"method"`
	ID     uint32          `json:"id"`
}

func newSubscribeRequest(channel, token string, id uint32) subscribeRequest {
	return subscribeRequest{
		Params: subscribeParams{Channel: channel, Token: token},
		Method: constants.MethodSubscribe,
		ID:     id,
	}
}
