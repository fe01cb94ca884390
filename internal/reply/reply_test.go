package reply

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/reachbox/internal/knowledge"
	"github.com/raphaelgruber/reachbox/internal/models"
)

type recordingModel struct {
	reply       string
	err         error
	prompt      string
	temperature float64
	hasDeadline bool
}

func (r *recordingModel) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	r.prompt = prompt
	r.temperature = temperature
	_, r.hasDeadline = ctx.Deadline()
	return r.reply, r.err
}

type fixedEmbedder map[string][]float32

func (f fixedEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := f[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

type failingRetriever struct{}

func (failingRetriever) QueryNearest(context.Context, string, int) ([]models.ScoredSnippet, error) {
	return nil, errors.New("store offline")
}

func email() models.EmailRecord {
	return models.EmailRecord{
		UID:     "7",
		Account: "a@x.com",
		Subject: "Pricing?",
		Body:    "Can you share a booking link?",
		Date:    time.Now(),
	}
}

func TestSuggestReplyEmptyKnowledgeBase(t *testing.T) {
	kb := knowledge.New(knowledge.NewMemoryStore(3), fixedEmbedder{}, nil)
	model := &recordingModel{reply: "Thanks for reaching out!"}
	engine := New(model, kb, Config{}, nil)

	got, err := engine.SuggestReply(context.Background(), email())
	require.NoError(t, err)
	assert.Equal(t, "Thanks for reaching out!", got)
	assert.NotContains(t, model.prompt, "Context:")
	assert.InDelta(t, DefaultTemperature, model.temperature, 1e-9)
	assert.True(t, model.hasDeadline)
}

func TestSuggestReplyUsesNearestSnippet(t *testing.T) {
	embedder := fixedEmbedder{
		"Our booking link is https://cal.com/example": {1, 0, 0},
		"We are closed on Sundays":                    {0, 1, 0},
		"Can you share a booking link?":               {0.9, 0.1, 0},
	}
	kb := knowledge.New(knowledge.NewMemoryStore(3), embedder, nil)
	ctx := context.Background()
	for _, text := range []string{"Our booking link is https://cal.com/example", "We are closed on Sundays"} {
		_, err := kb.Add(ctx, text)
		require.NoError(t, err)
	}

	model := &recordingModel{reply: "Here is the link."}
	_, err := New(model, kb, Config{}, nil).SuggestReply(ctx, email())
	require.NoError(t, err)

	assert.Contains(t, model.prompt, "Context:\nOur booking link is https://cal.com/example")
	assert.NotContains(t, model.prompt, "Sundays")
}

func TestSuggestReplyRetrievalFailureDegrades(t *testing.T) {
	model := &recordingModel{reply: "ok"}
	got, err := New(model, failingRetriever{}, Config{}, nil).SuggestReply(context.Background(), email())
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.NotContains(t, model.prompt, "Context:")
}

func TestSuggestReplyGenerationFailure(t *testing.T) {
	kb := knowledge.New(knowledge.NewMemoryStore(3), fixedEmbedder{}, nil)
	model := &recordingModel{err: errors.New("rate limited")}

	got, err := New(model, kb, Config{}, nil).SuggestReply(context.Background(), email())
	assert.ErrorIs(t, err, ErrReplyUnavailable)
	assert.Empty(t, got)
}

func TestBuildPromptTruncatesBody(t *testing.T) {
	e := email()
	e.Body = strings.Repeat("ü", 1500)

	prompt := BuildPrompt(e, nil)
	assert.Equal(t, BodyPrefixChars, strings.Count(prompt, "ü"))
	assert.Contains(t, prompt, "Subject: Pricing?")
	assert.True(t, strings.HasSuffix(prompt, "Suggested Reply:"))
}

// blockingEmbedder never answers before its context is done.
type blockingEmbedder struct{}

func (blockingEmbedder) Embed(ctx context.Context, _ string) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSuggestReplyRetrievalTimeoutDegrades(t *testing.T) {
	kb := knowledge.New(knowledge.NewMemoryStore(3), blockingEmbedder{}, nil)
	model := &recordingModel{reply: "Happy to help."}
	engine := New(model, kb, Config{Timeout: 50 * time.Millisecond}, nil)

	done := make(chan struct{})
	var (
		got string
		err error
	)
	go func() {
		defer close(done)
		got, err = engine.SuggestReply(context.Background(), email())
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("SuggestReply blocked on context lookup")
	}
	require.NoError(t, err)
	assert.Equal(t, "Happy to help.", got)
	assert.NotContains(t, model.prompt, "Context:")
}
