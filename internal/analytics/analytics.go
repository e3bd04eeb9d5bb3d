// Package analytics records visitor events and aggregates the admin
// dashboard figures.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/talhaa23/portfolio-agent/internal/metrics"
	"github.com/talhaa23/portfolio-agent/internal/store"
)

var ErrMissingFields = errors.New("conversationId and eventType are required")

const (
	DirectReferrer = "Direct"
	NoReferrer     = "None"

	DeviceMobile  = "Mobile"
	DeviceDesktop = "Desktop"

	topTopicsLimit = 10
)

var mobileAgent = regexp.MustCompile(`(?i)mobile`)

// knownEventTypes bounds the metric label set; the event type itself is
// client supplied.
var knownEventTypes = map[string]bool{
	"click":              true,
	"click_social":       true,
	"click_reference":    true,
	"click_meeting":      true,
	"click_contact":      true,
	"skill_match":        true,
	"contact_suggestion": true,
}

const otherEventLabel = "other"

func eventLabel(eventType string) string {
	if knownEventTypes[eventType] {
		return eventType
	}
	return otherEventLabel
}

type Store interface {
	TouchConversation(ctx context.Context, id string) error
	CreateEvent(ctx context.Context, ev *store.Event) error
	ListConversations(ctx context.Context) ([]store.Conversation, error)
	ListMessages(ctx context.Context) ([]store.Message, error)
	ListEvents(ctx context.Context) ([]store.Event, error)
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(s Store) *Service {
	return &Service{store: s, now: time.Now}
}

// Track makes sure the conversation exists and appends the event.
func (s *Service) Track(ctx context.Context, conversationID, eventType string, data map[string]any) error {
	if conversationID == "" || eventType == "" {
		return ErrMissingFields
	}
	if data == nil {
		data = map[string]any{}
	}

	if err := s.store.TouchConversation(ctx, conversationID); err != nil {
		return err
	}
	if err := s.store.CreateEvent(ctx, &store.Event{
		ConversationID: conversationID,
		EventType:      eventType,
		EventData:      data,
	}); err != nil {
		return err
	}

	metrics.TrackedEvents.WithLabelValues(eventLabel(eventType)).Inc()
	log.WithFields(log.Fields{"conversationID": conversationID, "eventType": eventType}).Debug("Tracked event")
	return nil
}

type KPI struct {
	TotalConversations int     `json:"totalConversations"`
	TotalMessages      int     `json:"totalMessages"`
	ActiveLast24h      int     `json:"activeLast24h"`
	AvgSentiment       float64 `json:"avgSentiment"`
	MostCommonReferrer string  `json:"mostCommonReferrer"`
}

type SentimentPoint struct {
	Date      string  `json:"date"`
	Sentiment float64 `json:"sentiment"`
}

type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

type NamedValue struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

type Charts struct {
	SentimentTrend []SentimentPoint `json:"sentimentTrend"`
	TopTopics      []TopicCount     `json:"topTopics"`
	DeviceSplit    []NamedValue     `json:"deviceSplit"`
	Events         []NamedValue     `json:"events"`
}

type Stats struct {
	KPI    KPI    `json:"kpi"`
	Charts Charts `json:"charts"`
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	convs, err := s.store.ListConversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversations: %w", err)
	}
	msgs, err := s.store.ListMessages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	events, err := s.store.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	stats := BuildStats(convs, msgs, events, s.now())
	return &stats, nil
}

// BuildStats aggregates raw rows into dashboard KPIs and chart series.
// Every series is sorted so the output is deterministic.
func BuildStats(convs []store.Conversation, msgs []store.Message, events []store.Event, now time.Time) Stats {
	var st Stats
	st.KPI.TotalConversations = len(convs)
	st.KPI.TotalMessages = len(msgs)

	referrers := map[string]int{}
	devices := map[string]int{}
	for _, c := range convs {
		last := c.UpdatedAt
		if last.IsZero() {
			last = c.CreatedAt
		}
		if now.Sub(last) < 24*time.Hour {
			st.KPI.ActiveLast24h++
		}

		ref := c.Referrer
		if ref == "" {
			ref = DirectReferrer
		}
		referrers[ref]++

		device := DeviceDesktop
		if mobileAgent.MatchString(c.DeviceInfo.UserAgent) {
			device = DeviceMobile
		}
		devices[device]++
	}
	st.KPI.MostCommonReferrer = NoReferrer
	if top := sortedCounts(referrers); len(top) > 0 {
		st.KPI.MostCommonReferrer = top[0].Name
	}

	type dayTotal struct {
		sum   float64
		count int
	}
	var (
		sentimentSum float64
		scored       int
	)
	daily := map[string]*dayTotal{}
	topics := map[string]int{}
	for _, m := range msgs {
		if m.SentimentScore != nil {
			sentimentSum += *m.SentimentScore
			scored++

			day := m.CreatedAt.UTC().Format(time.DateOnly)
			d, ok := daily[day]
			if !ok {
				d = &dayTotal{}
				daily[day] = d
			}
			d.sum += *m.SentimentScore
			d.count++
		}
		for _, t := range m.Topics {
			if t = strings.TrimSpace(t); t != "" {
				topics[t]++
			}
		}
	}
	if scored > 0 {
		st.KPI.AvgSentiment = sentimentSum / float64(scored)
	}

	st.Charts.SentimentTrend = make([]SentimentPoint, 0, len(daily))
	for day, d := range daily {
		st.Charts.SentimentTrend = append(st.Charts.SentimentTrend, SentimentPoint{Date: day, Sentiment: d.sum / float64(d.count)})
	}
	sort.Slice(st.Charts.SentimentTrend, func(i, j int) bool {
		return st.Charts.SentimentTrend[i].Date < st.Charts.SentimentTrend[j].Date
	})

	st.Charts.TopTopics = []TopicCount{}
	for i, nv := range sortedCounts(topics) {
		if i == topTopicsLimit {
			break
		}
		st.Charts.TopTopics = append(st.Charts.TopTopics, TopicCount{Topic: nv.Name, Count: nv.Value})
	}

	st.Charts.DeviceSplit = sortedCounts(devices)

	eventCounts := map[string]int{}
	for _, e := range events {
		eventCounts[e.EventType]++
	}
	st.Charts.Events = byName(eventCounts)
	return st
}

// sortedCounts orders by descending count, then name.
func sortedCounts(m map[string]int) []NamedValue {
	out := byName(m)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	return out
}

func byName(m map[string]int) []NamedValue {
	out := make([]NamedValue, 0, len(m))
	for k, v := range m {
		out = append(out, NamedValue{Name: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
