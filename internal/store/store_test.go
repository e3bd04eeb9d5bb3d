package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talhaa23/portfolio-agent/internal/config"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	s, err := Open(config.DriverSQLite, dsn, 3)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func chunk(content string, vec ...float32) DocumentChunk {
	return DocumentChunk{
		Content:   content,
		Metadata:  ChunkMetadata{Source: "test.md", Category: "Uncategorized", Tags: []string{"a"}, Importance: 5},
		Embedding: pgvector.NewVector(vec),
	}
}

func TestSimilaritySearchRanksByCosine(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertChunks(ctx, []DocumentChunk{
		chunk("x axis", 1, 0, 0),
		chunk("y axis", 0, 1, 0),
		chunk("mostly x", 0.9, 0.1, 0),
		chunk("z axis", 0, 0, 1),
	}))

	n, err := s.CountChunks(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)

	hits, err := s.SimilaritySearch(ctx, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "x axis", hits[0].Content)
	assert.Equal(t, "mostly x", hits[1].Content)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.Equal(t, "test.md", hits[0].Metadata.Source)
	assert.Equal(t, []string{"a"}, hits[0].Metadata.Tags)
}

func TestInsertChunksRejectsWrongDimensions(t *testing.T) {
	s := openTestStore(t)

	err := s.InsertChunks(context.Background(), []DocumentChunk{chunk("bad", 1, 2)})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = s.SimilaritySearch(context.Background(), []float32{1}, 3)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestUpsertConversation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertConversation(ctx, &Conversation{ID: "c1", Referrer: "https://google.com"}))
	require.NoError(t, s.UpsertConversation(ctx, &Conversation{
		ID:         "c1",
		Referrer:   "https://linkedin.com",
		DeviceInfo: DeviceInfo{UserAgent: "Mobile Safari"},
	}))
	require.NoError(t, s.TouchConversation(ctx, "c1"))
	require.NoError(t, s.TouchConversation(ctx, "c2"))

	convs, err := s.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 2)

	byID := map[string]Conversation{}
	for _, c := range convs {
		byID[c.ID] = c
	}
	assert.Equal(t, "https://linkedin.com", byID["c1"].Referrer)
	assert.Equal(t, "Mobile Safari", byID["c1"].DeviceInfo.UserAgent)
	assert.False(t, byID["c1"].UpdatedAt.Before(byID["c1"].CreatedAt))
	assert.Empty(t, byID["c2"].Referrer)
}

func TestRecentMessages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sentiment := 0.8
	for i := 0; i < 5; i++ {
		msg := &Message{ConversationID: "c1", Role: RoleUser, Content: fmt.Sprintf("m%d", i)}
		if i == 4 {
			msg.SentimentScore = &sentiment
			msg.Topics = []string{"go"}
		}
		require.NoError(t, s.CreateMessage(ctx, msg))
	}
	require.NoError(t, s.CreateMessage(ctx, &Message{ConversationID: "other", Role: RoleUser, Content: "x"}))

	msgs, err := s.RecentMessages(ctx, "c1", 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"m2", "m3", "m4"}, []string{msgs[0].Content, msgs[1].Content, msgs[2].Content})
	require.NotNil(t, msgs[2].SentimentScore)
	assert.Equal(t, 0.8, *msgs[2].SentimentScore)
	assert.Equal(t, []string{"go"}, msgs[2].Topics)

	all, err := s.ListMessages(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 6)
}

func TestCreateEvent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateEvent(ctx, &Event{
		ConversationID: "c1",
		EventType:      "contact_click",
		EventData:      map[string]any{"channel": "email"},
	}))

	events, err := s.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "contact_click", events[0].EventType)
	assert.Equal(t, "email", events[0].EventData["channel"])
	assert.False(t, events[0].CreatedAt.IsZero())
}
