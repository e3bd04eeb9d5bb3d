package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talhaa23/portfolio-agent/internal/agent"
	"github.com/talhaa23/portfolio-agent/internal/config"
	"github.com/talhaa23/portfolio-agent/internal/store"
)

type fakeAgent struct {
	text    string
	err     error
	system  string
	history []agent.Message
}

func (a *fakeAgent) Run(_ context.Context, system string, history []agent.Message) (*agent.Result, error) {
	a.system = system
	a.history = history
	if a.err != nil {
		return nil, a.err
	}
	return &agent.Result{Text: a.text, Iterations: 1}, nil
}

type failingEmbedder struct{}

func (failingEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedding service unavailable")
}

type staticRetriever string

func (r staticRetriever) ContextOrEmpty(context.Context, string) string { return string(r) }

func openStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	s, err := store.Open(config.DriverSQLite, dsn, 3)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRespondRequiresMessage(t *testing.T) {
	svc := NewChatService(nil, staticRetriever(""), &fakeAgent{}, "Talha", 20)

	_, err := svc.Respond(context.Background(), ChatRequest{})
	assert.ErrorIs(t, err, ErrNoMessage)

	_, err = svc.Respond(context.Background(), ChatRequest{Messages: []Turn{{Role: "user", Content: "  "}}})
	assert.ErrorIs(t, err, ErrNoMessage)
}

func TestRespondSurvivesRetrievalFailure(t *testing.T) {
	s := openStore(t)
	rag := NewRAGService(s, failingEmbedder{})
	a := &fakeAgent{text: "I build things."}
	svc := NewChatService(s, rag, a, "Talha", 20)

	reply, err := svc.Respond(context.Background(), ChatRequest{Messages: []Turn{{Role: "user", Content: "What do you do?"}}})
	require.NoError(t, err)
	svc.Wait()

	assert.Equal(t, "I build things.", reply.Text)
	assert.NotEmpty(t, reply.ConversationID)
	assert.Contains(t, a.system, "(no matching documents)")
}

func TestRespondBuildsPromptAndLogsTurn(t *testing.T) {
	s := openStore(t)
	a := &fakeAgent{text: `Sure! [REFERENCES: [{"title":"X","type":"project","link":"l1"}]] [ANALYTICS: {"sentiment":0.6,"topics":["rag"]}]`}
	svc := NewChatService(s, staticRetriever("Talha knows Go."), a, "Talha", 20)

	reply, err := svc.Respond(context.Background(), ChatRequest{
		ConversationID: "conv-1",
		Referrer:       "https://linkedin.com",
		DeviceInfo:     store.DeviceInfo{UserAgent: "Mobile"},
		Messages: []Turn{
			{Role: "assistant", Content: "Hi! Ask me anything."},
			{Role: "user", Content: "Tell me about RAG"},
		},
	})
	require.NoError(t, err)
	svc.Wait()

	assert.Contains(t, a.system, "Talha knows Go.")
	require.Len(t, a.history, 1)
	assert.Equal(t, agent.RoleUser, a.history[0].Role)

	assert.Equal(t, "Sure!", reply.Tags.Visible)
	require.Len(t, reply.Tags.References, 1)

	msgs, err := s.RecentMessages(context.Background(), "conv-1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, store.RoleUser, msgs[0].Role)
	require.NotNil(t, msgs[0].SentimentScore)
	assert.Equal(t, 0.6, *msgs[0].SentimentScore)
	assert.Equal(t, []string{"rag"}, msgs[0].Topics)
	assert.Equal(t, "Sure!", msgs[1].Content)

	convs, err := s.ListConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "https://linkedin.com", convs[0].Referrer)
}

func TestRespondLoadsPersistedHistory(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateMessage(ctx, &store.Message{ConversationID: "conv-2", Role: store.RoleUser, Content: "first"}))
	require.NoError(t, s.CreateMessage(ctx, &store.Message{ConversationID: "conv-2", Role: store.RoleAssistant, Content: "answer"}))

	a := &fakeAgent{text: "ok"}
	svc := NewChatService(s, staticRetriever(""), a, "Talha", 20)

	_, err := svc.Respond(ctx, ChatRequest{ConversationID: "conv-2", Messages: []Turn{{Role: "user", Content: "second"}}})
	require.NoError(t, err)
	svc.Wait()

	require.Len(t, a.history, 3)
	assert.Equal(t, []string{"first", "answer", "second"}, []string{a.history[0].Content, a.history[1].Content, a.history[2].Content})
	assert.Equal(t, agent.RoleModel, a.history[1].Role)
}

func TestRespondPropagatesRateLimit(t *testing.T) {
	a := &fakeAgent{err: fmt.Errorf("send: %w", ErrRateLimited)}
	svc := NewChatService(nil, staticRetriever(""), a, "Talha", 20)

	_, err := svc.Respond(context.Background(), ChatRequest{Messages: []Turn{{Role: "user", Content: "hi"}}})
	assert.ErrorIs(t, err, ErrRateLimited)
}
