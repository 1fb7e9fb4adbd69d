// Package transcript fetches YouTube caption tracks and flattens them into
// plain text.
package transcript

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/Fo4Ik-git/StreamPlayer/internal/constants"
	"github.com/Fo4Ik-git/StreamPlayer/internal/logger"
	"github.com/Fo4Ik-git/StreamPlayer/internal/metrics"
	"github.com/Fo4Ik-git/StreamPlayer/internal/model"
)

var (
	// ErrTranscriptsDisabled means the video has no caption tracks at all.
	ErrTranscriptsDisabled = errors.New("subtitles are disabled")
	// ErrNoTranscript means no track matches the preferred languages.
	ErrNoTranscript = errors.New("no transcript found for requested languages")
	// ErrInvalidVideoID rejects ids that are not 11 URL-safe characters.
	ErrInvalidVideoID = errors.New("invalid video id")
)

const (
	playerResponseMarker = "ytInitialPlayerResponse = "
	captionTracksPath    = "captions.playerCaptionsTracklistRenderer.captionTracks"
	maxPageSize          = 4 << 20
)

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// Fetcher downloads transcripts. It is safe for concurrent use.
type Fetcher struct {
	baseURL    string
	httpClient *http.Client
	languages  []string
	log        *logger.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(f *Fetcher) { f.httpClient = hc }
}

// NewFetcher creates a Fetcher against baseURL. languages is the preference
// order; empty means ru, en.
func NewFetcher(baseURL string, languages []string, log *logger.Logger, opts ...Option) *Fetcher {
	if len(languages) == 0 {
		languages = constants.DefaultTranscriptLanguages
	}
	f := &Fetcher{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: constants.DefaultHTTPTimeout},
		languages:  languages,
		log:        log,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Languages returns the preference order.
func (f *Fetcher) Languages() []string {
	return append([]string(nil), f.languages...)
}

type track struct {
	URL       string
	Language  string
	Generated bool
}

// Fetch returns the transcript of videoID as space-joined text.
func (f *Fetcher) Fetch(ctx context.Context, videoID string) (string, error) {
	start := time.Now()
	text, err := f.fetch(ctx, videoID)

	result := "success"
	switch {
	case errors.Is(err, ErrTranscriptsDisabled):
		result = "disabled"
	case errors.Is(err, ErrNoTranscript):
		result = "not_found"
	case err != nil:
		result = "error"
	}
	metrics.TranscriptRequests.WithLabelValues(result).Inc()

	if err != nil {
		f.log.Warn("Transcript fetch failed", "video_id", videoID, "error", err)
		return "", err
	}
	f.log.Info("Fetched transcript", "video_id", videoID, "chars", len(text), "took", time.Since(start))
	return text, nil
}

func (f *Fetcher) fetch(ctx context.Context, videoID string) (string, error) {
	if !videoIDPattern.MatchString(videoID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidVideoID, videoID)
	}

	page, err := f.get(ctx, f.baseURL+"/watch?v="+url.QueryEscape(videoID))
	if err != nil {
		return "", fmt.Errorf("loading watch page: %w", err)
	}

	tracks, err := parseTracks(page)
	if err != nil {
		return "", err
	}

	t, ok := pickTrack(tracks, f.languages)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoTranscript, strings.Join(f.languages, ", "))
	}
	f.log.Debug("Selected caption track", "video_id", videoID, "lang", t.Language, "generated", t.Generated)

	body, err := f.get(ctx, f.trackURL(t.URL))
	if err != nil {
		return "", fmt.Errorf("loading caption track: %w", err)
	}
	return joinSegments(body), nil
}

func (f *Fetcher) trackURL(raw string) string {
	if strings.HasPrefix(raw, "/") {
		raw = f.baseURL + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set("fmt", "json3")
	u.RawQuery = q.Encode()
	return u.String()
}

func (f *Fetcher) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", constants.DefaultUserAgent)
	req.Header.Set("Accept-Language", strings.Join(f.languages, ",")+";q=0.9")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", model.ErrNetwork, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", model.ErrNetwork, resp.StatusCode)
	}
	return body, nil
}

// parseTracks extracts the caption tracks from a watch page.
func parseTracks(page []byte) ([]track, error) {
	i := bytes.Index(page, []byte(playerResponseMarker))
	if i < 0 {
		return nil, fmt.Errorf("%w: player response not found", model.ErrProtocol)
	}
	player, err := leadingObject(page[i+len(playerResponseMarker):])
	if err != nil {
		return nil, fmt.Errorf("%w: malformed player response: %w", model.ErrProtocol, err)
	}

	if status := gjson.GetBytes(player, "playabilityStatus.status").String(); status != "" && status != "OK" {
		reason := gjson.GetBytes(player, "playabilityStatus.reason").String()
		return nil, fmt.Errorf("video unavailable: %s %s", status, reason)
	}

	list := gjson.GetBytes(player, captionTracksPath)
	if !list.IsArray() || len(list.Array()) == 0 {
		return nil, ErrTranscriptsDisabled
	}

	var tracks []track
	list.ForEach(func(_, v gjson.Result) bool {
		u := v.Get("baseUrl").String()
		if u == "" {
			return true
		}
		tracks = append(tracks, track{
			URL:       u,
			Language:  v.Get("languageCode").String(),
			Generated: v.Get("kind").String() == "asr",
		})
		return true
	})
	if len(tracks) == 0 {
		return nil, ErrTranscriptsDisabled
	}
	return tracks, nil
}

// leadingObject returns the JSON object at the start of b. Script text
// after it is not read.
func leadingObject(b []byte) ([]byte, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(bytes.NewReader(b)).Decode(&raw); err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, errors.New("not an object")
	}
	return raw, nil
}

// pickTrack returns the first track in language order, preferring manual
// captions over generated ones for the same language.
func pickTrack(tracks []track, languages []string) (track, bool) {
	for _, lang := range languages {
		var generated *track
		for i := range tracks {
			t := &tracks[i]
			if !strings.EqualFold(t.Language, lang) {
				continue
			}
			if !t.Generated {
				return *t, true
			}
			if generated == nil {
				generated = t
			}
		}
		if generated != nil {
			return *generated, true
		}
	}
	return track{}, false
}

// joinSegments flattens a json3 caption document into one line.
func joinSegments(body []byte) string {
	var parts []string
	gjson.GetBytes(body, "events").ForEach(func(_, event gjson.Result) bool {
		var b strings.Builder
		event.Get("segs").ForEach(func(_, seg gjson.Result) bool {
			b.WriteString(seg.Get("utf8").String())
			return true
		})
		if text := strings.Join(strings.Fields(b.String()), " "); text != "" {
			parts = append(parts, text)
		}
		return true
	})
	return strings.Join(parts, " ")
}
