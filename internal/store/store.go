package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pgvector/pgvector-go"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/talhaa23/portfolio-agent/internal/config"
	"github.com/talhaa23/portfolio-agent/internal/utils"
)

var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Store persists document chunks and analytics rows. Postgres is expected to
// have the pgvector extension available; SQLite ranks chunks in process.
type Store struct {
	db     *gorm.DB
	driver string
	dims   int

	// BatchSize bounds rows per INSERT statement.
	BatchSize int
}

func Open(driver, dsn string, dims int) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case config.DriverPostgres:
		dialector = postgres.Open(dsn)
	case config.DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == config.DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql handle: %w", err)
		}
		// SQLite allows a single writer.
		sqlDB.SetMaxOpenConns(1)
	}

	s := &Store{db: db, driver: driver, dims: dims, BatchSize: 100}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	if s.driver == config.DriverPostgres {
		if err := s.db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return fmt.Errorf("failed to enable pgvector: %w", err)
		}
	}
	return s.db.AutoMigrate(&DocumentChunk{}, &Conversation{}, &Message{}, &Event{})
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// InsertChunks writes all chunks or fails; rows already written by earlier
// batches are not rolled back.
func (s *Store) InsertChunks(ctx context.Context, chunks []DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for i := range chunks {
		if n := len(chunks[i].Embedding.Slice()); n != s.dims {
			return fmt.Errorf("chunk %d has %d dimensions, want %d: %w", i, n, s.dims, ErrDimensionMismatch)
		}
	}
	if err := s.db.WithContext(ctx).CreateInBatches(chunks, s.BatchSize).Error; err != nil {
		return fmt.Errorf("failed to insert document chunks: %w", err)
	}
	return nil
}

func (s *Store) CountChunks(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&DocumentChunk{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count document chunks: %w", err)
	}
	return n, nil
}

// SimilaritySearch returns up to k chunks ordered by descending cosine
// similarity to query.
func (s *Store) SimilaritySearch(ctx context.Context, query []float32, k int) ([]ScoredChunk, error) {
	if len(query) != s.dims {
		return nil, fmt.Errorf("query has %d dimensions, want %d: %w", len(query), s.dims, ErrDimensionMismatch)
	}
	if k <= 0 {
		return nil, nil
	}

	if s.driver == config.DriverPostgres {
		return s.searchPostgres(ctx, query, k)
	}
	return s.searchInProcess(ctx, query, k)
}

func (s *Store) searchPostgres(ctx context.Context, query []float32, k int) ([]ScoredChunk, error) {
	var chunks []DocumentChunk
	err := s.db.WithContext(ctx).
		Clauses(clause.OrderBy{
			Expression: clause.Expr{SQL: "embedding <=> ?", Vars: []interface{}{pgvector.NewVector(query)}},
		}).
		Limit(k).
		Find(&chunks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search document chunks: %w", err)
	}
	return score(query, chunks), nil
}

func (s *Store) searchInProcess(ctx context.Context, query []float32, k int) ([]ScoredChunk, error) {
	var chunks []DocumentChunk
	if err := s.db.WithContext(ctx).Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("failed to load document chunks: %w", err)
	}

	scored := score(query, chunks)
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func score(query []float32, chunks []DocumentChunk) []ScoredChunk {
	out := make([]ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		sim, err := utils.CosineSimilarity(query, c.Embedding.Slice())
		if err != nil {
			log.WithError(err).WithField("chunkID", c.ID).Warn("skipping chunk with unusable embedding")
			continue
		}
		out = append(out, ScoredChunk{DocumentChunk: c, Score: float64(sim)})
	}
	return out
}

// UpsertConversation inserts the conversation or refreshes its referrer,
// device info and updated_at.
func (s *Store) UpsertConversation(ctx context.Context, c *Conversation) error {
	c.UpdatedAt = time.Now()
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"referrer", "device_info", "updated_at"}),
	}).Create(c).Error
	if err != nil {
		return fmt.Errorf("failed to upsert conversation %s: %w", c.ID, err)
	}
	return nil
}

// TouchConversation creates the conversation if needed and bumps updated_at.
func (s *Store) TouchConversation(ctx context.Context, id string) error {
	c := &Conversation{ID: id, UpdatedAt: time.Now()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"updated_at"}),
	}).Create(c).Error
	if err != nil {
		return fmt.Errorf("failed to touch conversation %s: %w", id, err)
	}
	return nil
}

func (s *Store) CreateMessage(ctx context.Context, msg *Message) error {
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (s *Store) CreateEvent(ctx context.Context, ev *Event) error {
	if err := s.db.WithContext(ctx).Create(ev).Error; err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// RecentMessages returns the last limit messages of a conversation, oldest
// first.
func (s *Store) RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	var msgs []Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query messages for %s: %w", conversationID, err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *Store) ListConversations(ctx context.Context) ([]Conversation, error) {
	var out []Conversation
	if err := s.db.WithContext(ctx).Order("created_at").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return out, nil
}

func (s *Store) ListMessages(ctx context.Context) ([]Message, error) {
	var out []Message
	if err := s.db.WithContext(ctx).Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return out, nil
}

func (s *Store) ListEvents(ctx context.Context) ([]Event, error) {
	var out []Event
	if err := s.db.WithContext(ctx).Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return out, nil
}
