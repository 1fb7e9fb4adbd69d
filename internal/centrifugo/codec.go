package centrifugo

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/Fo4Ik-git/StreamPlayer/internal/jsonutil"
	"github.com/Fo4Ik-git/StreamPlayer/internal/model"
)

// AuthFrame encodes the connection auth request carrying the socket token.
func AuthFrame(token string, id uint32) ([]byte, error) {
	if id == 0 {
		return nil, fmt.Errorf("auth frame: request id must be non-zero")
	}
	b, err := json.Marshal(authRequest{Params: authParams{Token: token}, ID: id})
	if err != nil {
		return nil, fmt.Errorf("auth frame: %w", err)
	}
	return b, nil
}

// SubscribeFrame encodes a subscribe request for channel.
func SubscribeFrame(channel, subToken string, id uint32) ([]byte, error) {
	if id == 0 {
		return nil, fmt.Errorf("subscribe frame: request id must be non-zero")
	}
	if channel == "" {
		return nil, fmt.Errorf("subscribe frame: empty channel")
	}
	b, err := json.Marshal(newSubscribeRequest(channel, subToken, id))
	if err != nil {
		return nil, fmt.Errorf("subscribe frame: %w", err)
	}
	return b, nil
}

// DecodeBatch decodes every frame in one message. Frames may be separated by
// newlines or any other whitespace, and a single frame may span lines. Input
// that stops parsing becomes one trailing KindMalformed frame.
func DecodeBatch(data []byte) []Frame {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return []Frame{Decode(data)}
	}

	var frames []Frame
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	for dec.More() {
		offset := dec.InputOffset()
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return append(frames, malformed(remainder(trimmed, offset), fmt.Errorf("decoding frame: %w", err)))
		}
		frames = append(frames, Decode(raw))
	}
	if len(frames) == 0 {
		return []Frame{Decode(data)}
	}
	// More also stops at a stray closing bracket.
	if rest := remainder(trimmed, dec.InputOffset()); len(rest) > 0 {
		frames = append(frames, malformed(rest, errors.New("unexpected trailing data")))
	}
	return frames
}

// Decode classifies one server frame. It never fails; unparseable input
// becomes a KindMalformed frame wrapping model.ErrProtocol.
func Decode(data []byte) Frame {
	raw := append([]byte(nil), data...)
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Frame{Kind: KindEmpty, Raw: raw}
	}

	obj, err := decodeObject(trimmed)
	if err != nil {
		return malformed(raw, err)
	}
	if len(obj) == 0 {
		return Frame{Kind: KindEmpty, Raw: raw}
	}

	id, hasID, err := frameID(obj)
	if err != nil {
		return malformed(raw, err)
	}

	result, hasResult := obj["result"].(map[string]any)
	if _, present := obj["result"]; present && !hasResult && obj["result"] != nil {
		return malformed(raw, fmt.Errorf("result is %T, want object", obj["result"]))
	}

	if hasID {
		replyErr, err := decodeReplyError(obj)
		if err != nil {
			return malformed(raw, err)
		}
		return Frame{Kind: KindReply, ID: id, Result: result, Error: replyErr, Raw: raw}
	}

	if hasResult {
		return Frame{Kind: KindPublish, Result: result, Raw: raw}
	}

	return malformed(raw, errors.New("frame has neither id nor result"))
}

// remainder copies data from offset on, or all of data when offset is out of
// range.
func remainder(data []byte, offset int64) []byte {
	if offset < 0 || offset > int64(len(data)) {
		offset = 0
	}
	return append([]byte(nil), data[offset:]...)
}

func malformed(raw []byte, err error) Frame {
	return Frame{Kind: KindMalformed, Raw: raw, Err: fmt.Errorf("%w: %w", model.ErrProtocol, err)}
}

func decodeObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}
	if obj == nil {
		return nil, errors.New("frame is not an object")
	}
	return obj, nil
}

// frameID returns the request id of a reply. An absent or zero id means the
// frame is not a reply.
func frameID(obj map[string]any) (uint32, bool, error) {
	v, ok := obj["id"]
	if !ok || v == nil {
		return 0, false, nil
	}
	num, ok := v.(json.Number)
	if !ok {
		return 0, false, fmt.Errorf("id is %T, want number", v)
	}
	id, err := strconv.ParseUint(num.String(), 10, 32)
	if err != nil {
		return 0, false, fmt.Errorf("invalid id %q: %w", num, err)
	}
	return uint32(id), id != 0, nil
}

func decodeReplyError(obj map[string]any) (*ReplyError, error) {
	v, ok := obj["error"]
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("error is %T, want object", v)
	}
	return &ReplyError{
		Code:    jsonutil.IntFromAny(m["code"]),
		Message: jsonutil.StringFromAny(m["message"]),
	}, nil
}
