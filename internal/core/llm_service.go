package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/talhaa23/portfolio-agent/internal/agent"
	"github.com/talhaa23/portfolio-agent/internal/config"
)

const (
	chatTemperature = 0.3

	// Gemini caps batchEmbedContents at 100 requests.
	maxEmbedBatch = 100
)

// ErrRateLimited marks an upstream 429 / RESOURCE_EXHAUSTED response.
var ErrRateLimited = errors.New("upstream rate limit exceeded")

type LLMService struct {
	client         *genai.Client
	chatModel      string
	embeddingModel string
}

func NewLLMService(ctx context.Context, cfg *config.Config) (*LLMService, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &LLMService{
		client:         client,
		chatModel:      cfg.ChatModel,
		embeddingModel: cfg.EmbeddingModel,
	}, nil
}

func (s *LLMService) Close() {
	if s.client == nil {
		return
	}
	if err := s.client.Close(); err != nil {
		log.WithError(err).Warn("Error closing GenAI client")
		return
	}
	log.Debug("GenAI client closed")
}

func (s *LLMService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	em := s.client.EmbeddingModel(s.embeddingModel)
	em.TaskType = genai.TaskTypeRetrievalQuery

	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, classifyError("gemini embedding request failed", err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, errors.New("no embedding data received from gemini")
	}
	return res.Embedding.Values, nil
}

func (s *LLMService) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	em := s.client.EmbeddingModel(s.embeddingModel)
	em.TaskType = genai.TaskTypeRetrievalDocument

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxEmbedBatch {
		end := min(start+maxEmbedBatch, len(texts))

		batch := em.NewBatch()
		for _, t := range texts[start:end] {
			batch.AddContent(genai.Text(t))
		}
		res, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, classifyError("gemini batch embedding request failed", err)
		}
		if len(res.Embeddings) != end-start {
			return nil, fmt.Errorf("gemini returned %d embeddings for %d texts", len(res.Embeddings), end-start)
		}
		for _, e := range res.Embeddings {
			out = append(out, e.Values)
		}
	}
	return out, nil
}

// Generate implements agent.Model on top of Gemini function calling.
func (s *LLMService) Generate(ctx context.Context, system string, history []agent.Message, tools []agent.ToolSpec) (*agent.Response, error) {
	contents, err := toContents(history)
	if err != nil {
		return nil, err
	}
	last := contents[len(contents)-1]

	model := s.client.GenerativeModel(s.chatModel)
	model.SetTemperature(chatTemperature)
	if system != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(system))
	}
	if len(tools) > 0 {
		model.Tools = []*genai.Tool{{FunctionDeclarations: toDeclarations(tools)}}
	}

	cs := model.StartChat()
	cs.History = contents[:len(contents)-1]

	resp, err := cs.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, classifyError("gemini chat SendMessage failed", err)
	}
	return fromResponse(resp), nil
}

func toDeclarations(tools []agent.ToolSpec) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
		})
	}
	return decls
}

// toContents maps loop history onto Gemini turns. Tool results travel as
// function responses in a user turn.
func toContents(history []agent.Message) ([]*genai.Content, error) {
	if len(history) == 0 {
		return nil, errors.New("prompt history is empty for chat completion")
	}

	contents := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		c := &genai.Content{}
		switch m.Role {
		case agent.RoleUser:
			c.Role = "user"
			c.Parts = []genai.Part{genai.Text(m.Content)}
		case agent.RoleModel:
			c.Role = "model"
			if m.Content != "" {
				c.Parts = append(c.Parts, genai.Text(m.Content))
			}
			for _, call := range m.ToolCalls {
				c.Parts = append(c.Parts, genai.FunctionCall{Name: call.Name, Args: call.Args})
			}
		case agent.RoleTool:
			c.Role = "user"
			for _, r := range m.ToolResults {
				key := "result"
				if r.IsError {
					key = "error"
				}
				c.Parts = append(c.Parts, genai.FunctionResponse{
					Name:     r.Name,
					Response: map[string]any{key: r.Content},
				})
			}
		default:
			return nil, fmt.Errorf("unsupported message role %q", m.Role)
		}
		if len(c.Parts) == 0 {
			c.Parts = []genai.Part{genai.Text("")}
		}
		contents = append(contents, c)
	}

	if contents[len(contents)-1].Role != "user" {
		return nil, errors.New("last message in history is not from 'user', cannot proceed with chat completion")
	}
	return contents, nil
}

func fromResponse(resp *genai.GenerateContentResponse) *agent.Response {
	out := &agent.Response{}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		log.Warn("Gemini response was empty or had no valid candidates")
		return out
	}

	var text strings.Builder
	for i, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			text.WriteString(string(p))
		case genai.FunctionCall:
			out.ToolCalls = append(out.ToolCalls, agent.ToolCall{
				ID:   fmt.Sprintf("%s-%d", p.Name, i),
				Name: p.Name,
				Args: p.Args,
			})
		default:
			log.Debugf("Ignoring Gemini response part of type %T", part)
		}
	}
	out.Text = text.String()
	return out
}

// classifyError wraps err and tags upstream rate limiting with ErrRateLimited.
func classifyError(msg string, err error) error {
	if isRateLimited(err) {
		return fmt.Errorf("%s: %w: %w", msg, ErrRateLimited, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func isRateLimited(err error) bool {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code == http.StatusTooManyRequests
	}
	if st, ok := status.FromError(err); ok && st.Code() == codes.ResourceExhausted {
		return true
	}
	return false
}
