// Package gtts provides a tts.Provider backed by the public Google Translate
// text-to-speech endpoint. It needs no API key, which makes it the natural
// last entry in the synthesis failover chain. Output is always MP3.
package gtts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wenjiez/shuoba/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

const (
	defaultBaseURL  = "https://translate.google.com"
	defaultLanguage = "zh-CN"
	defaultTimeout  = 15 * time.Second
	ttsEndpoint     = "/translate_tts"

	// maxTextLen is the endpoint's hard limit per request. Longer tutor
	// replies are truncated rather than split: this provider is a last
	// resort and a partial clip beats no clip.
	maxTextLen = 200
)

// Provider implements tts.Provider using the Google Translate TTS endpoint.
type Provider struct {
	baseURL    string
	language   string
	httpClient *http.Client
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithBaseURL overrides the endpoint host (e.g. for tests).
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		if u != "" {
			p.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithLanguage sets the synthesis language tag. Default: "zh-CN".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		if lang != "" {
			p.language = lang
		}
	}
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// New creates a Google Translate TTS Provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		baseURL:  defaultBaseURL,
		language: defaultLanguage,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Name implements tts.Provider.
func (p *Provider) Name() string { return "gtts" }

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string) (*tts.Clip, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("gtts: text must not be empty")
	}
	if runes := []rune(text); len(runes) > maxTextLen {
		text = string(runes[:maxTextLen])
	}

	params := url.Values{}
	params.Set("ie", "UTF-8")
	params.Set("client", "tw-ob")
	params.Set("tl", p.language)
	params.Set("q", text)

	reqURL := p.baseURL + ttsEndpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("gtts: create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gtts: GET %s: %w", ttsEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gtts: GET %s returned status %d", ttsEndpoint, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gtts: read response: %w", err)
	}
	if len(data) == 0 {
		return nil, tts.ErrNoAudio
	}
	return &tts.Clip{Data: data, MIMEType: "audio/mpeg"}, nil
}
