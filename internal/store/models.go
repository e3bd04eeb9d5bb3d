package store

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChunkMetadata struct {
	Source        string   `json:"source"`
	Category      string   `json:"category"`
	Tags          []string `json:"tags"`
	Importance    int      `json:"importance"`
	ReferenceDate string   `json:"referenceDate"`
	UploadDate    string   `json:"uploadDate"`
}

// DocumentChunk is one embedded piece of an uploaded document.
type DocumentChunk struct {
	ID        int64           `gorm:"primaryKey" json:"id"`
	Content   string          `gorm:"not null" json:"content"`
	Metadata  ChunkMetadata   `gorm:"serializer:json" json:"metadata"`
	Embedding pgvector.Vector `gorm:"type:vector" json:"-"`
	CreatedAt time.Time       `json:"created_at"`
}

func (DocumentChunk) TableName() string { return "document_chunks" }

type DeviceInfo struct {
	UserAgent string `json:"userAgent,omitempty"`
	Screen    string `json:"screen,omitempty"`
	Language  string `json:"language,omitempty"`
}

// Conversation is keyed by the client generated session id.
type Conversation struct {
	ID         string     `gorm:"primaryKey" json:"id"`
	Referrer   string     `json:"referrer"`
	DeviceInfo DeviceInfo `gorm:"serializer:json" json:"device_info"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (Conversation) TableName() string { return "analytics_conversations" }

type Message struct {
	ID             int64     `gorm:"primaryKey" json:"id"`
	ConversationID string    `gorm:"index;not null" json:"conversation_id"`
	Role           string    `gorm:"not null" json:"role"` // "user" or "assistant"
	Content        string    `json:"content"`
	SentimentScore *float64  `json:"sentiment_score"`
	Topics         []string  `gorm:"serializer:json" json:"topics"`
	CreatedAt      time.Time `json:"created_at"`
}

func (Message) TableName() string { return "analytics_messages" }

type Event struct {
	ID             int64          `gorm:"primaryKey" json:"id"`
	ConversationID string         `gorm:"index;not null" json:"conversation_id"`
	EventType      string         `gorm:"not null" json:"event_type"`
	EventData      map[string]any `gorm:"serializer:json" json:"event_data"`
	CreatedAt      time.Time      `json:"created_at"`
}

func (Event) TableName() string { return "analytics_events" }

// ScoredChunk is a search hit with its cosine similarity to the query.
type ScoredChunk struct {
	DocumentChunk
	Score float64
}
