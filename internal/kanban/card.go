package kanban

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/hopewell/crm/internal/store"
)

// cardsTable is the record-store table holding every card kind.
const cardsTable = "cards"

// Card is a task or a recovery-seeker intake record placed on a board.
type Card struct {
	ID        string            `json:"id"`
	Pipeline  string            `json:"pipeline"`
	Kind      string            `json:"kind"`
	StageRef  string            `json:"stageRef"`
	Rank      string            `json:"rank"`
	Title     string            `json:"title"`
	Fields    map[string]string `json:"fields,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// CardInput is the caller-supplied part of a new card.
type CardInput struct {
	Title    string
	Kind     string
	StageRef string // empty means the pipeline's first stage
	Rank     string
	Fields   map[string]string
}

// CardPatch changes the non-nil fields of a card. Fields is merged; a key
// with an empty value is removed.
type CardPatch struct {
	Title    *string
	Pipeline *string
	StageRef *string
	Rank     *string
	Fields   map[string]string
}

// CardFilter selects cards by exact match on the non-empty fields.
type CardFilter struct {
	Pipeline string
	Kind     string
	StageRef string
}

func (f CardFilter) toStore() store.Filter {
	out := store.Filter{}
	if f.Pipeline != "" {
		out["pipeline"] = f.Pipeline
	}
	if f.Kind != "" {
		out["kind"] = f.Kind
	}
	if f.StageRef != "" {
		out["stage_ref"] = f.StageRef
	}
	return out
}

// StringPtr is a convenience for building patches.
func StringPtr(s string) *string { return &s }

func (c Card) toRecord() (store.Record, error) {
	fields, err := encodeFields(c.Fields)
	if err != nil {
		return nil, err
	}
	return store.Record{
		"id":         c.ID,
		"pipeline":   c.Pipeline,
		"kind":       c.Kind,
		"stage_ref":  c.StageRef,
		"rank":       c.Rank,
		"title":      c.Title,
		"fields":     fields,
		"created_at": c.CreatedAt,
		"updated_at": c.UpdatedAt,
	}, nil
}

func cardFromRecord(r store.Record) (Card, error) {
	c := Card{
		ID:        asString(r["id"]),
		Pipeline:  asString(r["pipeline"]),
		Kind:      asString(r["kind"]),
		StageRef:  asString(r["stage_ref"]),
		Rank:      asString(r["rank"]),
		Title:     asString(r["title"]),
		CreatedAt: asTime(r["created_at"]),
		UpdatedAt: asTime(r["updated_at"]),
	}
	if raw := asString(r["fields"]); raw != "" {
		if err := json.Unmarshal([]byte(raw), &c.Fields); err != nil {
			return Card{}, fmt.Errorf("kanban: decode fields of card %s: %w", c.ID, err)
		}
	}
	return c, nil
}

func encodeFields(fields map[string]string) (string, error) {
	if len(fields) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("kanban: encode fields: %w", err)
	}
	return string(b), nil
}

func mergeFields(cur, patch map[string]string) map[string]string {
	out := maps.Clone(cur)
	if out == nil {
		out = make(map[string]string)
	}
	for k, v := range patch {
		if v == "" {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

// asString normalises the column types drivers hand back for text.
func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case sql.RawBytes:
		return string(t)
	case sql.NullString:
		return t.String
	case *string:
		if t == nil {
			return ""
		}
		return *t
	default:
		return fmt.Sprint(t)
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case *time.Time:
		if t != nil {
			return *t
		}
	case sql.NullTime:
		return t.Time
	case string, []byte:
		s := strings.TrimSpace(asString(t))
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts
			}
		}
	}
	return time.Time{}
}
