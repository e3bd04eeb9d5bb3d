package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"

	"github.com/talhaa23/portfolio-agent/internal/analytics"
	"github.com/talhaa23/portfolio-agent/internal/auth"
	"github.com/talhaa23/portfolio-agent/internal/core"
	"github.com/talhaa23/portfolio-agent/internal/ingest"
)

const (
	maxUploadBytes  = 20 << 20
	streamChunkSize = 64
)

type Responder interface {
	Respond(ctx context.Context, req core.ChatRequest) (*core.ChatReply, error)
}

type Ingester interface {
	Ingest(ctx context.Context, text string, meta ingest.Metadata) (int, error)
}

type Analytics interface {
	Track(ctx context.Context, conversationID, eventType string, data map[string]any) error
	Stats(ctx context.Context) (*analytics.Stats, error)
}

type APIHandler struct {
	chat      Responder
	ingester  Ingester
	analytics Analytics
	auth      *auth.Authenticator
}

func NewAPIHandler(chat Responder, ingester Ingester, a Analytics, authenticator *auth.Authenticator) *APIHandler {
	return &APIHandler{chat: chat, ingester: ingester, analytics: a, auth: authenticator}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *APIHandler) AdminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "Authorization header is required")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		subject, err := h.auth.ValidateJWT(tokenString)
		if err != nil || subject != auth.AdminSubject {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

type AdminAuthRequest struct {
	Password string `json:"password"`
}

func (h *APIHandler) AdminAuthHandler(w http.ResponseWriter, r *http.Request) {
	var req AdminAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := h.auth.CheckPassword(req.Password); err != nil {
		if errors.Is(err, auth.ErrNotConfigured) {
			log.Error("Admin login attempted but no admin password is configured")
		}
		writeError(w, http.StatusUnauthorized, "Invalid password")
		return
	}

	token, err := h.auth.GenerateJWT(auth.AdminSubject)
	if err != nil {
		log.WithError(err).Error("Error generating admin JWT")
		writeError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// ChatHandler streams the answer as chunked plain text. Control tags are
// left in place for the client to decode.
func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var req core.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	reply, err := h.chat.Respond(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrNoMessage):
			writeError(w, http.StatusBadRequest, "No message provided")
		case errors.Is(err, core.ErrRateLimited):
			log.WithError(err).Warn("Chat request rate limited upstream")
			writeError(w, http.StatusTooManyRequests, "The assistant is receiving too many requests. Please try again shortly.")
		default:
			log.WithError(err).Error("Error in chat API")
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Conversation-Id", reply.ConversationID)
	w.WriteHeader(http.StatusOK)
	if err := streamText(w, reply.Text); err != nil {
		log.WithError(err).WithField("conversationID", reply.ConversationID).Warn("Client went away during stream")
	}
}

// streamText writes s in small flushed pieces without splitting runes.
func streamText(w io.Writer, s string) error {
	flusher, _ := w.(http.Flusher)
	for len(s) > 0 {
		n := min(streamChunkSize, len(s))
		for n < len(s) && !utf8.RuneStart(s[n]) {
			n++
		}
		if _, err := io.WriteString(w, s[:n]); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		s = s[n:]
	}
	return nil
}

type TrackRequest struct {
	ConversationID string         `json:"conversationId"`
	EventType      string         `json:"eventType"`
	EventData      map[string]any `json:"eventData"`
}

func (h *APIHandler) TrackHandler(w http.ResponseWriter, r *http.Request) {
	var req TrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := h.analytics.Track(r.Context(), req.ConversationID, req.EventType, req.EventData); err != nil {
		if errors.Is(err, analytics.ErrMissingFields) {
			writeError(w, http.StatusBadRequest, "Missing required fields")
			return
		}
		log.WithError(err).Error("Analytics track error")
		writeError(w, http.StatusInternalServerError, "Failed to track event")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type UploadResponse struct {
	Success bool   `json:"success"`
	Chunks  int    `json:"chunks"`
	Message string `json:"message"`
}

func (h *APIHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid upload: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read file: "+err.Error())
		return
	}

	text, err := ingest.ExtractText(header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(text) == "" {
		writeError(w, http.StatusBadRequest, "File has no text content")
		return
	}
	log.WithFields(log.Fields{"file": header.Filename, "length": len(text)}).Info("Extracted upload text")

	var importance int
	if raw := strings.TrimSpace(r.FormValue("importance")); raw != "" {
		if importance, err = strconv.Atoi(raw); err != nil {
			writeError(w, http.StatusBadRequest, "importance must be a number between 1 and 10")
			return
		}
	}
	meta := ingest.Metadata{
		Source:        header.Filename,
		Category:      r.FormValue("category"),
		Tags:          ingest.ParseTags(r.FormValue("tags")),
		Importance:    importance,
		ReferenceDate: r.FormValue("referenceDate"),
	}

	count, err := h.ingester.Ingest(r.Context(), text, meta)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrEmptyText), errors.Is(err, ingest.ErrMissingSource):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, core.ErrRateLimited):
			writeError(w, http.StatusTooManyRequests, err.Error())
		default:
			log.WithError(err).WithField("file", header.Filename).Error("Upload error")
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{Success: true, Chunks: count, Message: "File processed and stored!"})
}

func (h *APIHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.analytics.Stats(r.Context())
	if err != nil {
		log.WithError(err).Error("Stats API error")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
