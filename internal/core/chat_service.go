package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/talhaa23/portfolio-agent/internal/agent"
	"github.com/talhaa23/portfolio-agent/internal/metrics"
	"github.com/talhaa23/portfolio-agent/internal/store"
	"github.com/talhaa23/portfolio-agent/internal/tags"
)

var ErrNoMessage = errors.New("no message provided")

const logWriteTimeout = 10 * time.Second

type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Messages       []Turn           `json:"messages"`
	ConversationID string           `json:"conversationId,omitempty"`
	Referrer       string           `json:"referrer,omitempty"`
	DeviceInfo     store.DeviceInfo `json:"deviceInfo"`
}

// ChatReply carries the raw model text, tags included, plus its decoded view.
type ChatReply struct {
	ConversationID string
	Text           string
	Tags           tags.Result
	Iterations     int
	Aborted        bool
}

type ConversationStore interface {
	UpsertConversation(ctx context.Context, c *store.Conversation) error
	CreateMessage(ctx context.Context, msg *store.Message) error
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]store.Message, error)
}

type Retriever interface {
	ContextOrEmpty(ctx context.Context, query string) string
}

type Agent interface {
	Run(ctx context.Context, system string, history []agent.Message) (*agent.Result, error)
}

type ChatService struct {
	conversations ConversationStore
	retriever     Retriever
	agent         Agent
	owner         string
	historyWindow int

	pending sync.WaitGroup
}

func NewChatService(conversations ConversationStore, retriever Retriever, a Agent, owner string, historyWindow int) *ChatService {
	return &ChatService{
		conversations: conversations,
		retriever:     retriever,
		agent:         a,
		owner:         owner,
		historyWindow: historyWindow,
	}
}

// Respond runs one chat turn to completion. Conversation logging happens in
// the background and never affects the reply.
func (s *ChatService) Respond(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	if len(req.Messages) == 0 || strings.TrimSpace(req.Messages[len(req.Messages)-1].Content) == "" {
		metrics.ChatRequests.WithLabelValues("bad_request").Inc()
		return nil, ErrNoMessage
	}
	question := req.Messages[len(req.Messages)-1].Content

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	logger := log.WithField("conversationID", conversationID)

	history := toHistory(req.Messages)
	if len(req.Messages) == 1 && req.ConversationID != "" {
		history = append(s.loadHistory(ctx, conversationID), history...)
	}
	history = dropLeadingModelTurns(history)

	retrieved := s.retriever.ContextOrEmpty(ctx, question)
	system := BuildSystemPrompt(s.owner, retrieved)

	res, err := s.agent.Run(ctx, system, history)
	if err != nil {
		outcome := "error"
		if errors.Is(err, ErrRateLimited) {
			outcome = "rate_limited"
		}
		metrics.ChatRequests.WithLabelValues(outcome).Inc()
		return nil, fmt.Errorf("failed to run agent: %w", err)
	}

	reply := &ChatReply{
		ConversationID: conversationID,
		Text:           res.Text,
		Tags:           tags.Parse(res.Text),
		Iterations:     res.Iterations,
		Aborted:        res.Aborted,
	}
	metrics.ChatRequests.WithLabelValues("ok").Inc()
	logger.WithFields(log.Fields{"iterations": res.Iterations, "toolCalls": res.ToolCalls}).Info("Chat turn completed")

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logWriteTimeout)
		defer cancel()
		s.logTurn(logCtx, req, question, reply)
	}()

	return reply, nil
}

// Wait blocks until background conversation logging has finished.
func (s *ChatService) Wait() {
	s.pending.Wait()
}

func (s *ChatService) loadHistory(ctx context.Context, conversationID string) []agent.Message {
	if s.conversations == nil {
		return nil
	}
	msgs, err := s.conversations.RecentMessages(ctx, conversationID, s.historyWindow)
	if err != nil {
		log.WithError(err).WithField("conversationID", conversationID).Warn("Failed to load conversation history, proceeding without it")
		return nil
	}

	out := make([]agent.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, agent.Message{Role: agentRole(m.Role), Content: m.Content})
	}
	return out
}

func (s *ChatService) logTurn(ctx context.Context, req ChatRequest, question string, reply *ChatReply) {
	if s.conversations == nil {
		return
	}
	logger := log.WithField("conversationID", reply.ConversationID)

	err := s.conversations.UpsertConversation(ctx, &store.Conversation{
		ID:         reply.ConversationID,
		Referrer:   req.Referrer,
		DeviceInfo: req.DeviceInfo,
	})
	if err != nil {
		logger.WithError(err).Warn("Analytics logging failed")
		return
	}

	userMsg := &store.Message{ConversationID: reply.ConversationID, Role: store.RoleUser, Content: question}
	if a := reply.Tags.Analytics; a != nil {
		sentiment := a.Sentiment
		userMsg.SentimentScore = &sentiment
		userMsg.Topics = a.Topics
	}
	if err := s.conversations.CreateMessage(ctx, userMsg); err != nil {
		logger.WithError(err).Warn("Analytics logging failed")
		return
	}

	err = s.conversations.CreateMessage(ctx, &store.Message{
		ConversationID: reply.ConversationID,
		Role:           store.RoleAssistant,
		Content:        reply.Tags.Visible,
	})
	if err != nil {
		logger.WithError(err).Warn("Analytics logging failed")
	}
}

func toHistory(turns []Turn) []agent.Message {
	out := make([]agent.Message, 0, len(turns))
	for _, t := range turns {
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		out = append(out, agent.Message{Role: agentRole(t.Role), Content: t.Content})
	}
	return out
}

func agentRole(role string) string {
	if role == store.RoleUser {
		return agent.RoleUser
	}
	return agent.RoleModel
}

// dropLeadingModelTurns removes greetings shown before the visitor spoke;
// the model expects the conversation to open with a user turn.
func dropLeadingModelTurns(history []agent.Message) []agent.Message {
	for len(history) > 0 && history[0].Role != agent.RoleUser {
		history = history[1:]
	}
	return history
}
