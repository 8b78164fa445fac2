// Package pipeline orchestrates one tutoring turn: transcribe the learner's
// audio, translate it and generate the tutor's bilingual reply in parallel,
// synthesize the reply through the TTS failover chain, store the clip, and
// append both turns to history.
//
// Degradation contract: only transcription is fatal to a turn, and even then
// the caller receives a well-formed degraded result rather than an error.
// Every downstream failure is absorbed into sentinel text or a null audio
// URL so the conversation never breaks mid-lesson.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wenjiez/shuoba/internal/blob"
	"github.com/wenjiez/shuoba/internal/history"
	"github.com/wenjiez/shuoba/internal/observe"
	"github.com/wenjiez/shuoba/internal/resilience"
	"github.com/wenjiez/shuoba/pkg/audio"
	"github.com/wenjiez/shuoba/pkg/provider/chat"
	"github.com/wenjiez/shuoba/pkg/provider/stt"
	"github.com/wenjiez/shuoba/pkg/provider/tts"
	"github.com/wenjiez/shuoba/pkg/transliterate"
)

// historyWindow is how many prior turns are replayed as generation context.
const historyWindow = 8

const translationSystemPrompt = "You are a precise translator."

const dialogueSystemPrompt = "You are a friendly Mandarin Chinese tutor having a casual conversation with a learner. " +
	"Reply in simplified Chinese with one or two short sentences a beginner can follow, " +
	"then add a final line starting with \"English translation:\" containing the English translation of your reply."

// Turn is one side of an exchange as returned to the client.
type Turn struct {
	Hanzi   string `json:"hanzi"`
	Pinyin  string `json:"pinyin"`
	English string `json:"english"`
}

// Result is the assembled outcome of one pipeline run.
type Result struct {
	UserInput  Turn    `json:"user_input"`
	AIResponse Turn    `json:"ai_response"`
	AudioURL   *string `json:"audio_url"`
}

// Request carries one recorded utterance through the pipeline.
type Request struct {
	// Audio is the recorded utterance.
	Audio []byte

	// Filename is the original upload name; backends use its extension to
	// sniff the container format.
	Filename string

	// ContextOverride, when non-nil, replaces stored history as generation
	// context for this turn only. Stored history is still appended to.
	ContextOverride []history.Turn
}

// Pipeline runs tutoring turns. Construct with [New]; safe for concurrent use.
type Pipeline struct {
	transcriber stt.Provider
	chatter     chat.Provider
	voices      *resilience.Chain[tts.Provider]
	clips       blob.Store
	turns       history.Store
	metrics     *observe.Metrics
	log         *slog.Logger
}

// Option is a functional option for [New].
type Option func(*Pipeline)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(p *Pipeline) {
		if log != nil {
			p.log = log
		}
	}
}

// WithMetrics sets the metrics instance. Default: observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) {
		if m != nil {
			p.metrics = m
		}
	}
}

// New assembles a [Pipeline]. All five collaborators are required.
func New(
	transcriber stt.Provider,
	chatter chat.Provider,
	voices *resilience.Chain[tts.Provider],
	clips blob.Store,
	turns history.Store,
	opts ...Option,
) (*Pipeline, error) {
	if transcriber == nil || chatter == nil || voices == nil || clips == nil || turns == nil {
		return nil, fmt.Errorf("pipeline: all collaborators must be non-nil")
	}
	p := &Pipeline{
		transcriber: transcriber,
		chatter:     chatter,
		voices:      voices,
		clips:       clips,
		turns:       turns,
		log:         slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p, nil
}

// Run executes one tutoring turn. The returned error is non-nil only for
// caller mistakes (empty audio) or a cancelled context; provider failures
// come back as a degraded but well-formed [Result].
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	if len(req.Audio) == 0 {
		return nil, fmt.Errorf("pipeline: audio must not be empty")
	}

	transcript, err := p.transcribe(ctx, req)
	if err == nil && strings.TrimSpace(transcript) == "" {
		// An empty transcript is a transcription failure regardless of what
		// the provider reported; the contract cannot rest on every backend
		// returning ErrEmptyTranscript itself.
		err = stt.ErrEmptyTranscript
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// The only fatal stage: no text means nothing downstream can run.
		// No history is written for a turn that never happened.
		p.log.Warn("transcription failed, degrading turn", "error", err)
		p.metrics.RecordDegradation(ctx, "transcribe")
		p.metrics.RecordTurn(ctx, "degraded")
		return degradedResult(), nil
	}

	prior, err := p.generationContext(ctx, req)
	if err != nil {
		p.log.Warn("history read failed, generating without context", "error", err)
		prior = nil
	}

	var (
		english string
		reply   Turn
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		english = p.translate(gctx, transcript)
		return nil
	})
	g.Go(func() error {
		reply = p.generate(gctx, transcript, prior)
		return nil
	})
	_ = g.Wait() // stages degrade internally and never return errors
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	audioURL := p.synthesize(ctx, reply.Hanzi)

	result := &Result{
		UserInput: Turn{
			Hanzi:   transcript,
			Pinyin:  transliterate.Pinyin(transcript),
			English: english,
		},
		AIResponse: reply,
		AudioURL:   audioURL,
	}

	p.appendHistory(ctx, result)
	p.metrics.RecordTurn(ctx, "ok")
	return result, nil
}

// transcribe runs the STT stage.
func (p *Pipeline) transcribe(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	transcript, err := p.transcriber.Transcribe(ctx, req.Audio, req.Filename)
	p.metrics.RecordStage(ctx, "transcribe", time.Since(start))
	return transcript, err
}

// generationContext returns the prior turns used as dialogue context.
func (p *Pipeline) generationContext(ctx context.Context, req Request) ([]history.Turn, error) {
	if req.ContextOverride != nil {
		return req.ContextOverride, nil
	}
	return p.turns.ReadAll(ctx)
}

// translate renders the learner's Mandarin into English. Never fails:
// provider errors and empty output degrade to sentinel text.
func (p *Pipeline) translate(ctx context.Context, transcript string) string {
	if strings.TrimSpace(transcript) == "" {
		return sentinelNoInput
	}

	start := time.Now()
	out, err := p.chatter.Complete(ctx, chat.Request{
		System: translationSystemPrompt,
		Messages: []chat.Message{{
			Role: chat.RoleUser,
			Content: fmt.Sprintf(
				"Translate the following Mandarin Chinese text to English, providing only the English translation: %q",
				transcript,
			),
		}},
	})
	p.metrics.RecordStage(ctx, "translate", time.Since(start))

	if err != nil {
		p.log.Warn("translation failed", "error", err)
		p.metrics.RecordDegradation(ctx, "translate")
		return sentinelUnavailable
	}
	out = stripTranslationLabel(out)
	if out == "" {
		p.metrics.RecordDegradation(ctx, "translate")
		return sentinelEmptyOutput
	}
	return out
}

// generate produces the tutor's bilingual reply. Never fails: provider
// errors and unparseable output degrade to sentinel text.
func (p *Pipeline) generate(ctx context.Context, transcript string, prior []history.Turn) Turn {
	messages := buildDialogueMessages(transcript, prior)

	start := time.Now()
	raw, err := p.chatter.Complete(ctx, chat.Request{
		System:   dialogueSystemPrompt,
		Messages: messages,
	})
	p.metrics.RecordStage(ctx, "generate", time.Since(start))

	if err != nil {
		p.log.Warn("dialogue generation failed", "error", err)
		p.metrics.RecordDegradation(ctx, "generate")
		return Turn{
			Hanzi:   errorReplyHanzi,
			Pinyin:  transliterate.Pinyin(errorReplyHanzi),
			English: errorReplyEnglish,
		}
	}

	hanzi, english := SplitReply(raw)

	// Fill whichever half the model left out, greeting on a fresh
	// conversation and acknowledging otherwise.
	fbHanzi, fbEnglish := greetingHanzi, greetingEnglish
	if len(prior) > 0 {
		fbHanzi, fbEnglish = ackHanzi, ackEnglish
	}
	if hanzi == "" {
		hanzi, english = fbHanzi, fbEnglish
	} else if english == "" {
		english = fbEnglish
	}

	return Turn{
		Hanzi:   hanzi,
		Pinyin:  transliterate.Pinyin(hanzi),
		English: english,
	}
}

// buildDialogueMessages replays the context window as chat messages. Learner
// turns carry their English gloss so the model tracks beginner phrasing.
func buildDialogueMessages(transcript string, prior []history.Turn) []chat.Message {
	if len(prior) > historyWindow {
		prior = prior[len(prior)-historyWindow:]
	}
	messages := make([]chat.Message, 0, len(prior)+1)
	for _, t := range prior {
		switch t.Role {
		case history.RoleUser:
			content := t.Hanzi
			if t.English != "" {
				content = fmt.Sprintf("%s (English: %s)", t.Hanzi, t.English)
			}
			messages = append(messages, chat.Message{Role: chat.RoleUser, Content: content})
		case history.RoleAssistant:
			messages = append(messages, chat.Message{Role: chat.RoleAssistant, Content: t.Hanzi})
		}
	}
	return append(messages, chat.Message{Role: chat.RoleUser, Content: transcript})
}

// synthesize runs the TTS failover chain and stores the winning clip.
// Returns nil when every provider fails.
func (p *Pipeline) synthesize(ctx context.Context, text string) *string {
	start := time.Now()
	clip, winner, err := resilience.Run(ctx, p.voices,
		func(ctx context.Context, v tts.Provider) (*tts.Clip, error) {
			return v.Synthesize(ctx, text)
		})
	p.metrics.RecordStage(ctx, "synthesize", time.Since(start))

	if err != nil {
		p.log.Warn("all synthesis providers failed, serving text only", "error", err)
		p.metrics.RecordDegradation(ctx, "synthesize")
		return nil
	}

	data := clip.Data
	ext, ok := audio.ExtensionForMIME(clip.MIMEType)
	if !ok {
		// Raw PCM: wrap in a WAV container before serving.
		data = audio.WrapWAV(data, audio.ParseMIME(clip.MIMEType))
		ext = ".wav"
	}

	url, err := p.clips.Put(ctx, data, ext)
	if err != nil {
		p.log.Warn("storing audio clip failed, serving text only", "error", err)
		p.metrics.RecordDegradation(ctx, "synthesize")
		return nil
	}

	p.metrics.RecordSynthesisWin(ctx, winner)
	return &url
}

// appendHistory writes the learner turn then the tutor turn. Insertion order
// is the API contract, so the two appends are sequential. Failures are
// logged, not surfaced: the client already has its result.
func (p *Pipeline) appendHistory(ctx context.Context, result *Result) {
	now := time.Now().UTC()
	userTurn := history.Turn{
		Role:      history.RoleUser,
		Hanzi:     result.UserInput.Hanzi,
		Pinyin:    result.UserInput.Pinyin,
		English:   result.UserInput.English,
		CreatedAt: now,
	}
	if err := p.turns.Append(ctx, userTurn); err != nil {
		p.log.Warn("appending user turn failed", "error", err)
		return
	}
	assistantTurn := history.Turn{
		Role:      history.RoleAssistant,
		Hanzi:     result.AIResponse.Hanzi,
		Pinyin:    result.AIResponse.Pinyin,
		English:   result.AIResponse.English,
		AudioURL:  result.AudioURL,
		CreatedAt: now,
	}
	if err := p.turns.Append(ctx, assistantTurn); err != nil {
		p.log.Warn("appending assistant turn failed", "error", err)
	}
}

// degradedResult is the fixed response for a turn whose audio could not be
// transcribed.
func degradedResult() *Result {
	return &Result{
		UserInput: Turn{
			Hanzi:   degradedUserHanzi,
			Pinyin:  transliterate.Pinyin(degradedUserHanzi),
			English: degradedUserEnglish,
		},
		AIResponse: Turn{
			Hanzi:   degradedReplyHanzi,
			Pinyin:  transliterate.Pinyin(degradedReplyHanzi),
			English: degradedReplyEnglish,
		},
		AudioURL: nil,
	}
}
