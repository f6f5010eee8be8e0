package research

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ScoreMin and ScoreMax bound the four idea scores.
const (
	ScoreMin = 0
	ScoreMax = 10
)

// ProjectIdea is one science-fair project proposal. Ideas are created
// transiently by the ideation flow (no ID) and promoted to persistent by a
// save; after that they only change through favorite-toggle or delete.
type ProjectIdea struct {
	ID      uuid.UUID `json:"id,omitempty"`
	LocalID string    `json:"localId,omitempty"`

	Title       string `json:"title"`
	Description string `json:"description"`
	// Analysis is the rendered field-analysis markdown copied onto the idea
	// at creation time. It is never recomputed.
	Analysis string `json:"analysis"`
	Category string `json:"category"`

	Impact    int `json:"impact"`
	Rigor     int `json:"rigor"`
	Novelty   int `json:"novelty"`
	WowFactor int `json:"wowFactor"`

	ResourcesHTML string    `json:"resourcesHtml"`
	Timeline      string    `json:"timeline,omitempty"`
	IsFavorited   bool      `json:"isFavorited,omitempty"`
	CreatedAt     time.Time `json:"createdAt,omitempty"`
}

// Saved reports whether the idea has been promoted to the persistent store.
func (p ProjectIdea) Saved() bool { return p.ID != uuid.Nil }

// Key is a stable identifier for list operations: the store ID once saved,
// the draft's local ID before that.
func (p ProjectIdea) Key() string {
	if p.Saved() {
		return p.ID.String()
	}
	return p.LocalID
}

// ClampScores forces all four scores into [ScoreMin, ScoreMax]. Generation
// responses with out-of-range scores are clamped rather than rejected.
func (p *ProjectIdea) ClampScores() {
	p.Impact = ClampScore(p.Impact)
	p.Rigor = ClampScore(p.Rigor)
	p.Novelty = ClampScore(p.Novelty)
	p.WowFactor = ClampScore(p.WowFactor)
}

func ClampScore(v int) int {
	if v < ScoreMin {
		return ScoreMin
	}
	if v > ScoreMax {
		return ScoreMax
	}
	return v
}

// Chat roles. The oracle uses "model" for the assistant side.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// ChatMessage is one transcript turn. Content is markdown, rendered at
// display time. Image is a data URL kept for display only; it is attached to
// at most the request that introduced it and never re-sent.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Image   string `json:"image,omitempty"`
}

// Source is one grounding citation returned by a search-augmented generation.
type Source struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// DedupSources removes duplicate citations by URI. The first title seen for
// a URI wins; order of first appearance is kept.
func DedupSources(in []Source) []Source {
	seen := make(map[string]bool, len(in))
	out := make([]Source, 0, len(in))
	for _, s := range in {
		if s.URI == "" || seen[s.URI] {
			continue
		}
		seen[s.URI] = true
		out = append(out, s)
	}
	return out
}

// RecentQuery is one remembered ideation topic.
type RecentQuery struct {
	Topic     string    `json:"topic"`
	Timestamp time.Time `json:"timestamp"`
}

// MaxRecentQueries bounds the recent-query list.
const MaxRecentQueries = 10

// PushRecent inserts topic at the front of the list. Topics are unique
// case-insensitively; reinserting an existing topic moves it to the front
// instead of duplicating it. The result never exceeds MaxRecentQueries.
func PushRecent(list []RecentQuery, topic string, now time.Time) []RecentQuery {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return list
	}
	out := make([]RecentQuery, 0, len(list)+1)
	out = append(out, RecentQuery{Topic: topic, Timestamp: now})
	key := strings.ToLower(topic)
	for _, q := range list {
		if strings.ToLower(q.Topic) == key {
			continue
		}
		out = append(out, q)
	}
	if len(out) > MaxRecentQueries {
		out = out[:MaxRecentQueries]
	}
	return out
}

// NewLocalID tags an unsaved draft so list renderers can key on something
// stable before the store assigns a real ID.
func NewLocalID() string { return uuid.NewString() }
