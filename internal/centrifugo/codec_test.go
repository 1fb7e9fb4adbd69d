package centrifugo

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fo4Ik-git/StreamPlayer/internal/model"
)

func TestAuthFrame(t *testing.T) {
	b, err := AuthFrame("sock-token", 1)
	require.NoError(t, err)
	assert.JSONEq(t, `{"params":{"token":"sock-token"},"id":1}`, string(b))

	_, err = AuthFrame("sock-token", 0)
	assert.Error(t, err)
}

func TestSubscribeFrame(t *testing.T) {
	b, err := SubscribeFrame("$alerts:donation_42", "sub-token", 2)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"params":{"channel":"$alerts:donation_42","token":"sub-token"},"method":1,"id":2}`,
		string(b))

	_, err = SubscribeFrame("", "sub-token", 2)
	assert.Error(t, err)
}

func TestDecodeKinds(t *testing.T) {
	tests := []struct {
		name string
		in   string
		kind Kind
	}{
		{"blank", "  \n", KindEmpty},
		{"empty object", "{}", KindEmpty},
		{"auth reply", `{"id":1,"result":{"client":"abc","version":"2.8"}}`, KindReply},
		{"subscribe reply", `{"id":2,"result":{}}`, KindReply},
		{"reply without result", `{"id":2}`, KindReply},
		{"publish", `{"result":{"channel":"$alerts:donation_1","data":{"data":{"username":"x"}}}}`, KindPublish},
		{"zero id publish", `{"id":0,"result":{"data":{}}}`, KindPublish},
		{"garbage", `not json`, KindMalformed},
		{"array", `[1,2]`, KindMalformed},
		{"null", `null`, KindMalformed},
		{"unknown shape", `{"foo":"bar"}`, KindMalformed},
		{"string id", `{"id":"1","result":{}}`, KindMalformed},
		{"scalar result", `{"result":5}`, KindMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Decode([]byte(tt.in))
			assert.Equal(t, tt.kind, f.Kind)
			assert.Equal(t, tt.in, string(f.Raw))
			if tt.kind == KindMalformed {
				assert.True(t, errors.Is(f.Err, model.ErrProtocol))
			} else {
				assert.NoError(t, f.Err)
			}
		})
	}
}

func TestDecodeReply(t *testing.T) {
	f := Decode([]byte(`{"id":1,"result":{"client":"c-1"}}`))
	require.Equal(t, KindReply, f.Kind)
	assert.Equal(t, uint32(1), f.ID)
	assert.Equal(t, "c-1", f.Result["client"])
	assert.Nil(t, f.Error)
}

func TestDecodeReplyError(t *testing.T) {
	f := Decode([]byte(`{"id":2,"error":{"code":103,"message":"permission denied"}}`))
	require.Equal(t, KindReply, f.Kind)
	require.NotNil(t, f.Error)
	assert.Equal(t, 103, f.Error.Code)
	assert.Equal(t, "permission denied", f.Error.Message)
	assert.Contains(t, f.Error.Error(), "103")
}

func TestDecodeKeepsNesting(t *testing.T) {
	f := Decode([]byte(`{"result":{"data":{"data":{"amount":10}}}}`))
	require.Equal(t, KindPublish, f.Kind)

	outer, ok := f.Result["data"].(map[string]any)
	require.True(t, ok)
	_, ok = outer["data"].(map[string]any)
	assert.True(t, ok)
}

func TestDecodeBatch(t *testing.T) {
	frames := DecodeBatch([]byte("{\"id\":1,\"result\":{\"client\":\"c\"}}\n{}\n\n{\"result\":{\"data\":{}}}\n"))
	require.Len(t, frames, 3)
	assert.Equal(t, KindReply, frames[0].Kind)
	assert.Equal(t, KindEmpty, frames[1].Kind)
	assert.Equal(t, KindPublish, frames[2].Kind)

	single := DecodeBatch([]byte(`{}`))
	require.Len(t, single, 1)
	assert.Equal(t, KindEmpty, single[0].Kind)
}

func TestDecodeBatchMultiLineFrame(t *testing.T) {
	msg := "{\n  \"result\": {\n    \"channel\": \"$alerts:donation_42\",\n    \"data\": {\"data\": {\"username\": \"Bob\",\n \"amount\": 10}}\n  }\n}\n"
	frames := DecodeBatch([]byte(msg))
	require.Len(t, frames, 1)
	assert.Equal(t, KindPublish, frames[0].Kind)
	assert.Equal(t, "$alerts:donation_42", frames[0].Result["channel"])
}

func TestDecodeBatchWhitespaceSeparated(t *testing.T) {
	frames := DecodeBatch([]byte("{\"id\":1,\"result\":{\"client\":\"c\"}} {}\t{\n\"result\":{}\n}"))
	require.Len(t, frames, 3)
	assert.Equal(t, KindReply, frames[0].Kind)
	assert.Equal(t, KindEmpty, frames[1].Kind)
	assert.Equal(t, KindPublish, frames[2].Kind)
}

func TestDecodeBatchBrokenRemainder(t *testing.T) {
	frames := DecodeBatch([]byte("{\"result\":{}}\n{\"result\": broken"))
	require.Len(t, frames, 2)
	assert.Equal(t, KindPublish, frames[0].Kind)
	assert.Equal(t, KindMalformed, frames[1].Kind)
	assert.ErrorIs(t, frames[1].Err, model.ErrProtocol)
	assert.Contains(t, string(frames[1].Raw), "broken")

	frames = DecodeBatch([]byte("{}\n}"))
	require.Len(t, frames, 2)
	assert.Equal(t, KindEmpty, frames[0].Kind)
	assert.Equal(t, KindMalformed, frames[1].Kind)

	frames = DecodeBatch([]byte("not json"))
	require.Len(t, frames, 1)
	assert.Equal(t, KindMalformed, frames[0].Kind)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "empty", KindEmpty.String())
	assert.Equal(t, "reply", KindReply.String())
	assert.Equal(t, "publish", KindPublish.String())
	assert.Equal(t, "malformed", KindMalformed.String())
}
