package donation

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, raw string) map[string]any {
	t.Helper()
	var obj map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &obj))
	return obj
}

const donationBody = `{"id":777,"username":"Bob","amount":150.5,"currency":"RUB","message":"hi","date_created":"2024-05-01 10:20:30"}`

func TestNormalizeDepths(t *testing.T) {
	payloads := map[int]string{
		0: donationBody,
		1: `{"data":` + donationBody + `}`,
		2: `{"channel":"$alerts:donation_1","data":{"seq":3,"data":` + donationBody + `}}`,
		3: `{"data":{"data":{"data":` + donationBody + `}}}`,
	}

	for depth, raw := range payloads {
		ev, out := Normalize(parse(t, raw))

		require.True(t, out.Forwarded, "depth %d", depth)
		assert.Equal(t, depth, out.Depth)
		assert.Equal(t, depth > 2, out.Unexpected())

		assert.Equal(t, "Bob", ev.Username)
		assert.Equal(t, "150.5", ev.Amount.String())
		assert.Equal(t, "RUB", ev.Currency)
		assert.Equal(t, "hi", ev.Message)
		assert.Equal(t, "777", ev.ExternalID)
		assert.Equal(t, time.Date(2024, 5, 1, 10, 20, 30, 0, time.UTC), ev.CreatedAt)
	}
}

func TestNormalizeConnectionInfoDropped(t *testing.T) {
	for _, raw := range []string{
		`{"info":{"user":"42"}}`,
		`{"data":{"info":{"user":"42","client":"c"}}}`,
		`{"data":{"data":{"info":{"user":{"id":1}}}}}`,
	} {
		obj := parse(t, raw)
		_, out := Normalize(obj)
		assert.False(t, out.Forwarded)
		assert.Equal(t, ReasonConnectionInfo, out.Reason)

		// Idempotent: the same message is dropped the same way again.
		_, again := Normalize(obj)
		assert.Equal(t, out, again)
	}
}

func TestNormalizePartialPayload(t *testing.T) {
	ev, out := Normalize(parse(t, `{"data":{"username":"Alice","amount":"oops","message":5}}`))
	require.True(t, out.Forwarded)

	assert.Equal(t, "Alice", ev.Username)
	assert.True(t, ev.Amount.IsZero())
	assert.Equal(t, "", ev.Currency)
	assert.Equal(t, "5", ev.Message)
	assert.Equal(t, "", ev.ExternalID)
	assert.True(t, ev.CreatedAt.IsZero())
}

func TestNormalizeCreatedAtFallback(t *testing.T) {
	ev, out := Normalize(parse(t, `{"username":"x","created_at":"2024-05-01T10:20:30Z"}`))
	require.True(t, out.Forwarded)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 20, 30, 0, time.UTC), ev.CreatedAt.UTC())
}

func TestNormalizeStringAmount(t *testing.T) {
	ev, out := Normalize(parse(t, `{"amount":"99.99","currency":"USD"}`))
	require.True(t, out.Forwarded)
	assert.Equal(t, "99.99", ev.Amount.String())
}

func TestNormalizeNotDonation(t *testing.T) {
	_, out := Normalize(parse(t, `{"data":{"seq":1,"offset":2}}`))
	assert.False(t, out.Forwarded)
	assert.Equal(t, ReasonNotDonation, out.Reason)
	assert.NotEmpty(t, out.Detail)
}

func TestNormalizeEmpty(t *testing.T) {
	_, out := Normalize(nil)
	assert.False(t, out.Forwarded)
	assert.Equal(t, ReasonEmpty, out.Reason)
}

func TestNormalizeDataNotObject(t *testing.T) {
	// A scalar data field is a leaf, not an envelope.
	ev, out := Normalize(parse(t, `{"data":"x","username":"u"}`))
	require.True(t, out.Forwarded)
	assert.Equal(t, 0, out.Depth)
	assert.Equal(t, "u", ev.Username)
}
