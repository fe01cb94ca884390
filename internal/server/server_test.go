package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/reachbox/internal/metrics"
	"github.com/raphaelgruber/reachbox/internal/models"
	"github.com/raphaelgruber/reachbox/internal/pipeline"
	"github.com/raphaelgruber/reachbox/internal/reply"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSearch struct {
	got     models.SearchQuery
	results []models.EmailRecord
	err     error
}

func (f *fakeSearch) SearchEmails(_ context.Context, q models.SearchQuery) ([]models.EmailRecord, error) {
	f.got = q
	return f.results, f.err
}

type fakeReply struct {
	text string
	err  error
}

func (f fakeReply) SuggestReply(context.Context, models.EmailRecord) (string, error) {
	return f.text, f.err
}

type fakeIngest struct {
	outcomes chan pipeline.Outcome
	err      error
}

func (f *fakeIngest) Process(_ context.Context, e models.EmailRecord) (pipeline.Outcome, error) {
	if f.err != nil {
		return pipeline.Outcome{}, f.err
	}
	return pipeline.Outcome{Key: e.Key(), Category: models.CategorySpam, Kind: pipeline.KindSuccess}, nil
}

func (f *fakeIngest) Subscribe(int) (<-chan pipeline.Outcome, func()) {
	return f.outcomes, func() {}
}

type fakeKnowledge struct{ added []string }

func (f *fakeKnowledge) Add(_ context.Context, text string) (models.KnowledgeSnippet, error) {
	f.added = append(f.added, text)
	return models.KnowledgeSnippet{ID: int64(len(f.added)), Text: text}, nil
}

type fakeContent struct{ account string }

func (f *fakeContent) Similar(_ context.Context, account string, _ []float32, k int) ([]string, error) {
	f.account = account
	return []string{"3", "1"}[:min(k, 2)], nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(context.Context, string) ([]float32, error) { return []float32{1, 0}, nil }

type fixture struct {
	search    *fakeSearch
	ingest    *fakeIngest
	knowledge *fakeKnowledge
	content   *fakeContent
	metrics   *metrics.Collector
	reply     fakeReply
}

func newFixture() *fixture {
	return &fixture{
		search:    &fakeSearch{},
		ingest:    &fakeIngest{outcomes: make(chan pipeline.Outcome, 1)},
		knowledge: &fakeKnowledge{},
		content:   &fakeContent{},
		metrics:   metrics.NewCollector(),
		reply:     fakeReply{text: "Thanks!"},
	}
}

func (f *fixture) server(opts Options) *Server {
	return New(Deps{
		Search:    f.search,
		Reply:     f.reply,
		Ingest:    f.ingest,
		Knowledge: f.knowledge,
		Embedder:  fakeEmbedder{},
		Content:   f.content,
		Metrics:   f.metrics,
	}, opts, discardLogger())
}

func do(t *testing.T, h http.Handler, method, target string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(t, newFixture().server(Options{}).Handler(), http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSearchEmails(t *testing.T) {
	f := newFixture()
	f.search.results = []models.EmailRecord{{
		UID: "1", Account: "a@x.com", Folder: "INBOX", Subject: "Re: demo",
		Body: "Looking forward to Tuesday", Category: models.CategoryInterested,
		Date: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC),
	}}
	h := f.server(Options{}).Handler()

	rec := do(t, h, http.MethodGet, "/api/emails/search?text=tuesday&account=a@x.com&category=Interested&limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, models.SearchQuery{
		Text: "tuesday", Account: "a@x.com", Category: models.CategoryInterested, Limit: 10,
	}, f.search.got)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	for _, field := range []string{"uid", "account", "folder", "from", "to", "subject", "date", "category", "body"} {
		assert.Contains(t, got[0], field)
	}
	assert.Equal(t, "Interested", got[0]["category"])
}

func TestSearchEmailsEmptyResultIsArray(t *testing.T) {
	rec := do(t, newFixture().server(Options{}).Handler(), http.MethodGet, "/api/emails/search", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestSearchEmailsBadInput(t *testing.T) {
	h := newFixture().server(Options{}).Handler()

	rec := do(t, h, http.MethodGet, "/api/emails/search?category=Hot", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/emails/search?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchEmailsIndexFailure(t *testing.T) {
	f := newFixture()
	f.search.err = errors.New("connection refused")

	rec := do(t, f.server(Options{}).Handler(), http.MethodGet, "/api/emails/search?text=x", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

func TestSuggestReply(t *testing.T) {
	f := newFixture()
	rec := do(t, f.server(Options{}).Handler(), http.MethodPost, "/api/emails/suggest-reply",
		map[string]any{"subject": "Pricing?", "body": "Send me the link"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"reply":"Thanks!"}`, rec.Body.String())
}

func TestSuggestReplyUnavailable(t *testing.T) {
	f := newFixture()
	f.reply = fakeReply{err: fmt.Errorf("%w: quota", reply.ErrReplyUnavailable)}

	rec := do(t, f.server(Options{}).Handler(), http.MethodPost, "/api/emails/suggest-reply",
		map[string]any{"subject": "s", "body": "b"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestIngestEmail(t *testing.T) {
	f := newFixture()
	h := f.server(Options{}).Handler()

	rec := do(t, h, http.MethodPost, "/api/emails", map[string]any{
		"uid": "9", "account": "a@x.com", "subject": "s", "body": "b", "date": "2026-05-04T10:00:00Z",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "success", got["kind"])
	assert.Equal(t, "9", got["uid"])
}

func TestIngestEmailValidation(t *testing.T) {
	h := newFixture().server(Options{}).Handler()

	rec := do(t, h, http.MethodPost, "/api/emails", map[string]any{"uid": "9"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "account is required")
}

func TestIngestEmailIgnoresUnknownCategory(t *testing.T) {
	h := newFixture().server(Options{}).Handler()

	rec := do(t, h, http.MethodPost, "/api/emails", map[string]any{
		"uid": "9", "account": "a@x.com", "date": "2026-05-04T10:00:00Z", "category": "Hot",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIngestEmailWorkerClosed(t *testing.T) {
	f := newFixture()
	f.ingest.err = pipeline.ErrWorkerClosed

	rec := do(t, f.server(Options{}).Handler(), http.MethodPost, "/api/emails", map[string]any{
		"uid": "9", "account": "a@x.com", "date": "2026-05-04T10:00:00Z",
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAddKnowledge(t *testing.T) {
	f := newFixture()
	h := f.server(Options{}).Handler()

	rec := do(t, h, http.MethodPost, "/api/knowledge", map[string]any{"text": "Booking link: https://cal.com/example"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"id":1,"text":"Booking link: https://cal.com/example"}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/knowledge", map[string]any{"text": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, f.knowledge.added, 1)
}

func TestSimilarEmails(t *testing.T) {
	f := newFixture()
	rec := do(t, f.server(Options{}).Handler(), http.MethodPost, "/api/emails/similar",
		map[string]any{"account": "a@x.com", "text": "demo", "limit": 2})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"account":"a@x.com","uids":["3","1"]}`, rec.Body.String())
	assert.Equal(t, "a@x.com", f.content.account)
}

func TestStats(t *testing.T) {
	f := newFixture()
	h := f.server(Options{}).Handler()
	do(t, h, http.MethodGet, "/api/emails/search", nil)

	rec := do(t, h, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap metrics.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Contains(t, snap.Operations, metrics.OpSearch)
	assert.Equal(t, int64(1), snap.Operations[metrics.OpSearch].Count)
}

func signToken(t *testing.T, secret string, method jwt.SigningMethod, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(method, jwt.MapClaims{"sub": "ops", "exp": exp.Unix()})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestAuthMiddleware(t *testing.T) {
	h := newFixture().server(Options{JWTSecret: "topsecret"}).Handler()

	t.Run("health is public", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/health", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing header", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/stats", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/stats", nil, "Authorization", "Token abc")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token := signToken(t, "other", jwt.SigningMethodHS256, time.Now().Add(time.Hour))
		rec := do(t, h, http.MethodGet, "/api/stats", nil, "Authorization", "Bearer "+token)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired", func(t *testing.T) {
		token := signToken(t, "topsecret", jwt.SigningMethodHS256, time.Now().Add(-time.Hour))
		rec := do(t, h, http.MethodGet, "/api/stats", nil, "Authorization", "Bearer "+token)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong algorithm", func(t *testing.T) {
		token := signToken(t, "topsecret", jwt.SigningMethodHS512, time.Now().Add(time.Hour))
		rec := do(t, h, http.MethodGet, "/api/stats", nil, "Authorization", "Bearer "+token)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid", func(t *testing.T) {
		token := signToken(t, "topsecret", jwt.SigningMethodHS256, time.Now().Add(time.Hour))
		rec := do(t, h, http.MethodGet, "/api/stats", nil, "Authorization", "Bearer "+token)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestEventsStreamsOutcomes(t *testing.T) {
	f := newFixture()
	srv := httptest.NewServer(f.server(Options{}).Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	f.ingest.outcomes <- pipeline.Outcome{
		Key:      models.Key{Account: "a@x.com", UID: "1"},
		Category: models.CategoryInterested,
		Kind:     pipeline.KindSuccess,
		Notified: true,
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got map[string]any
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "Interested", got["category"])
	assert.Equal(t, true, got["notified"])

	close(f.ingest.outcomes)
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}
