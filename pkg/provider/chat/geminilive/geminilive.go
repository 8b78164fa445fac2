// Package geminilive provides a chat.Provider that speaks the Gemini Live
// WebSocket protocol (BidiGenerateContent). Each Complete call opens a
// session, plays the conversation in as client content, collects the model
// turn as text, and closes the connection.
package geminilive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/wenjiez/shuoba/pkg/provider/chat"
)

// Compile-time interface assertion.
var _ chat.Provider = (*Provider)(nil)

const (
	defaultHost    = "wss://generativelanguage.googleapis.com/ws"
	defaultModel   = "gemini-2.0-flash-live-001"
	defaultTimeout = 30 * time.Second

	bidiPath = "google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
)

// Provider implements chat.Provider over the Gemini Live WebSocket API.
type Provider struct {
	apiKey  string
	host    string
	model   string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithHost overrides the WebSocket host (e.g. for tests).
func WithHost(host string) Option {
	return func(p *Provider) {
		if host != "" {
			p.host = strings.TrimRight(host, "/")
		}
	}
}

// WithModel overrides the default live model.
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithTimeout caps the duration of a single Complete call.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.timeout = d
	}
}

// New creates a Gemini Live chat Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("geminilive: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:  apiKey,
		host:    defaultHost,
		model:   defaultModel,
		timeout: defaultTimeout,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ── Protocol message types ─────────────────────────────────────────────────────

type setupMessage struct {
	Setup setupConfig `json:"setup"`
}

type setupConfig struct {
	Model             string             `json:"model"`
	GenerationConfig  generationConfig   `json:"generationConfig"`
	SystemInstruction *systemInstruction `json:"systemInstruction,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string `json:"responseModalities"`
}

type systemInstruction struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text,omitempty"`
}

type clientContentMessage struct {
	ClientContent clientContent `json:"clientContent"`
}

type clientContent struct {
	Turns        []contentTurn `json:"turns"`
	TurnComplete bool          `json:"turnComplete"`
}

type contentTurn struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type serverMessage struct {
	SetupComplete *json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent *serverContent   `json:"serverContent,omitempty"`
	Error         *apiError        `json:"error,omitempty"`
}

type serverContent struct {
	ModelTurn    *modelTurn `json:"modelTurn,omitempty"`
	TurnComplete bool       `json:"turnComplete,omitempty"`
}

type modelTurn struct {
	Parts []part `json:"parts"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ── Complete ───────────────────────────────────────────────────────────────────

// Complete implements chat.Provider.
func (p *Provider) Complete(ctx context.Context, req chat.Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	wsURL := fmt.Sprintf("%s/%s?key=%s", p.host, bidiPath, p.apiKey)
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Content-Type": []string{"application/json"},
		},
	})
	if err != nil {
		return "", fmt.Errorf("geminilive: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	setup := setupMessage{
		Setup: setupConfig{
			Model: fmt.Sprintf("models/%s", p.model),
			GenerationConfig: generationConfig{
				ResponseModalities: []string{"TEXT"},
			},
		},
	}
	if req.System != "" {
		setup.Setup.SystemInstruction = &systemInstruction{
			Parts: []part{{Text: req.System}},
		}
	}
	if err := writeJSON(ctx, conn, setup); err != nil {
		return "", fmt.Errorf("geminilive: setup: %w", err)
	}

	// The server acknowledges setup before accepting content.
	if _, err := readMessage(ctx, conn); err != nil {
		return "", fmt.Errorf("geminilive: setup ack: %w", err)
	}

	if err := writeJSON(ctx, conn, buildClientContent(req.Messages)); err != nil {
		return "", fmt.Errorf("geminilive: send content: %w", err)
	}

	var reply strings.Builder
	for {
		msg, err := readMessage(ctx, conn)
		if err != nil {
			return "", fmt.Errorf("geminilive: read: %w", err)
		}
		if msg.Error != nil {
			return "", fmt.Errorf("geminilive: server error %d: %s", msg.Error.Code, msg.Error.Message)
		}
		sc := msg.ServerContent
		if sc == nil {
			continue
		}
		if sc.ModelTurn != nil {
			for _, pt := range sc.ModelTurn.Parts {
				reply.WriteString(pt.Text)
			}
		}
		if sc.TurnComplete {
			break
		}
	}

	text := strings.TrimSpace(reply.String())
	if text == "" {
		return "", fmt.Errorf("geminilive: empty model turn")
	}
	return text, nil
}

// buildClientContent converts conversation messages into a clientContent
// frame. Gemini names the assistant role "model".
func buildClientContent(messages []chat.Message) clientContentMessage {
	turns := make([]contentTurn, 0, len(messages))
	for _, m := range messages {
		role := "user"
		if m.Role == chat.RoleAssistant {
			role = "model"
		}
		turns = append(turns, contentTurn{
			Role:  role,
			Parts: []part{{Text: m.Content}},
		})
	}
	return clientContentMessage{
		ClientContent: clientContent{
			Turns:        turns,
			TurnComplete: true,
		},
	}
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

func readMessage(ctx context.Context, conn *websocket.Conn) (*serverMessage, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return &msg, nil
}
