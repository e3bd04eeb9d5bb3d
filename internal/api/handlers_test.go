package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talhaa23/portfolio-agent/internal/analytics"
	"github.com/talhaa23/portfolio-agent/internal/auth"
	"github.com/talhaa23/portfolio-agent/internal/core"
	"github.com/talhaa23/portfolio-agent/internal/ingest"
)

type fakeResponder struct {
	reply *core.ChatReply
	err   error
	got   core.ChatRequest
}

func (f *fakeResponder) Respond(_ context.Context, req core.ChatRequest) (*core.ChatReply, error) {
	f.got = req
	return f.reply, f.err
}

type fakeIngester struct {
	text string
	meta ingest.Metadata
	err  error
}

func (f *fakeIngester) Ingest(_ context.Context, text string, meta ingest.Metadata) (int, error) {
	f.text, f.meta = text, meta
	if f.err != nil {
		return 0, f.err
	}
	return 3, nil
}

type fakeAnalytics struct {
	tracked []string
	err     error
}

func (f *fakeAnalytics) Track(_ context.Context, conversationID, eventType string, _ map[string]any) error {
	if conversationID == "" || eventType == "" {
		return analytics.ErrMissingFields
	}
	if f.err != nil {
		return f.err
	}
	f.tracked = append(f.tracked, eventType)
	return nil
}

func (f *fakeAnalytics) Stats(context.Context) (*analytics.Stats, error) {
	return &analytics.Stats{KPI: analytics.KPI{TotalConversations: 7, MostCommonReferrer: "Direct"}}, nil
}

type fixture struct {
	router    http.Handler
	chat      *fakeResponder
	ingester  *fakeIngester
	analytics *fakeAnalytics
	auth      *auth.Authenticator
}

func newFixture() *fixture {
	f := &fixture{
		chat:      &fakeResponder{},
		ingester:  &fakeIngester{},
		analytics: &fakeAnalytics{},
		auth:      auth.NewAuthenticator("secret", "letmein", ""),
	}
	f.router = NewRouter(NewAPIHandler(f.chat, f.ingester, f.analytics, f.auth))
	return f
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) adminToken(t *testing.T) string {
	t.Helper()
	token, err := f.auth.GenerateJWT(auth.AdminSubject)
	require.NoError(t, err)
	return token
}

func TestChatStreamsRawText(t *testing.T) {
	f := newFixture()
	raw := `Hello ` + strings.Repeat("é", 80) + ` [REFERENCES: [{"title":"X","type":"project","link":"l1"}]]`
	f.chat.reply = &core.ChatReply{ConversationID: "c1", Text: raw}

	body := `{"messages":[{"role":"user","content":"hi"}],"conversationId":"c1","deviceInfo":{"userAgent":"Mobile"}}`
	rec := f.do(t, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, raw, rec.Body.String())
	assert.Equal(t, "c1", rec.Header().Get("X-Conversation-Id"))
	assert.True(t, rec.Flushed)
	assert.Equal(t, "Mobile", f.chat.got.DeviceInfo.UserAgent)
}

func TestChatErrorStatuses(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"missing message", core.ErrNoMessage, http.StatusBadRequest},
		{"rate limited", fmt.Errorf("agent: %w", core.ErrRateLimited), http.StatusTooManyRequests},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.chat.err = tt.err

			rec := f.do(t, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"messages":[]}`)))

			assert.Equal(t, tt.want, rec.Code)
			var payload map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
			assert.NotEmpty(t, payload["error"])
		})
	}
}

func TestTrack(t *testing.T) {
	f := newFixture()

	rec := f.do(t, httptest.NewRequest(http.MethodPost, "/api/analytics/track",
		strings.NewReader(`{"conversationId":"c1","eventType":"click","eventData":{"target":"cv"}}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	assert.Equal(t, []string{"click"}, f.analytics.tracked)

	rec = f.do(t, httptest.NewRequest(http.MethodPost, "/api/analytics/track", strings.NewReader(`{"eventType":"click"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.analytics.err = errors.New("db down")
	rec = f.do(t, httptest.NewRequest(http.MethodPost, "/api/analytics/track", strings.NewReader(`{"conversationId":"c1","eventType":"click"}`)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAdminAuth(t *testing.T) {
	f := newFixture()

	rec := f.do(t, httptest.NewRequest(http.MethodPost, "/api/admin/auth", strings.NewReader(`{"password":"wrong"}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, httptest.NewRequest(http.MethodPost, "/api/admin/auth", strings.NewReader(`{"password":"letmein"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))

	sub, err := f.auth.ValidateJWT(payload["token"])
	require.NoError(t, err)
	assert.Equal(t, auth.AdminSubject, sub)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	f := newFixture()

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/admin/analytics/stats", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/analytics/stats", nil)
	req.Header.Set("Authorization", "Bearer nope")
	assert.Equal(t, http.StatusUnauthorized, f.do(t, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/admin/analytics/stats", nil)
	req.Header.Set("Authorization", "Bearer "+f.adminToken(t))
	rec = f.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats analytics.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 7, stats.KPI.TotalConversations)
}

func uploadRequest(t *testing.T, token, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/admin/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestUpload(t *testing.T) {
	f := newFixture()
	token := f.adminToken(t)

	rec := f.do(t, uploadRequest(t, token, "cv.md", "# Talha\nBuilds RAG apps.", map[string]string{
		"category":      "Resume",
		"tags":          "ai, rag ,",
		"importance":    "8",
		"referenceDate": "2025-01-01",
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"chunks":3,"message":"File processed and stored!"}`, rec.Body.String())
	assert.Equal(t, ingest.Metadata{
		Source:        "cv.md",
		Category:      "Resume",
		Tags:          []string{"ai", "rag"},
		Importance:    8,
		ReferenceDate: "2025-01-01",
	}, f.ingester.meta)

	rec = f.do(t, uploadRequest(t, token, "", "", map[string]string{"category": "x"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, uploadRequest(t, token, "blank.txt", "  \n ", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.ingester.err = errors.New("embedding failed")
	rec = f.do(t, uploadRequest(t, token, "cv.md", "text", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealth(t *testing.T) {
	rec := newFixture().do(t, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestUploadRejectsNonNumericImportance(t *testing.T) {
	f := newFixture()

	rec := f.do(t, uploadRequest(t, f.adminToken(t), "cv.md", "text", map[string]string{"importance": "abc"}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "importance")
	assert.Empty(t, f.ingester.text)

	rec = f.do(t, uploadRequest(t, f.adminToken(t), "cv.md", "text", map[string]string{"importance": " "}))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, f.ingester.meta.Importance)
}
