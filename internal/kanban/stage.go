package kanban

import (
	"cmp"
	"slices"
	"strconv"
	"strings"
	"unicode"
)

// Uncategorised is the synthetic bucket for cards whose StageRef matches no
// registered stage. It is never issued as a real stage key.
const Uncategorised = "uncategorised"

// Stage is one ordered column of a pipeline.
type Stage struct {
	Key       string `json:"key"`
	Label     string `json:"label"`
	Color     string `json:"color"`
	SortOrder int    `json:"sortOrder"`
}

// StageInput is the caller-supplied part of a new stage.
type StageInput struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

// palette hands out colours to stages created without one.
var palette = []string{
	"#64748b", "#3b82f6", "#f59e0b", "#8b5cf6", "#22c55e", "#ef4444", "#14b8a6", "#ec4899",
}

// Slug derives a stage key from a label: lowercase letters and digits, with
// every other run of characters collapsed to a single '-'.
func Slug(label string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(label) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	return b.String()
}

// uniqueKey returns base, or base-2, base-3... whichever is free in stages.
func uniqueKey(base string, stages []Stage) string {
	if base == "" {
		base = "stage"
	}
	taken := func(k string) bool {
		return k == Uncategorised || slices.ContainsFunc(stages, func(s Stage) bool { return s.Key == k })
	}
	if !taken(base) {
		return base
	}
	for n := 2; ; n++ {
		k := base + "-" + strconv.Itoa(n)
		if !taken(k) {
			return k
		}
	}
}

// sortStages orders stages by SortOrder, falling back to key for ties.
func sortStages(stages []Stage) {
	slices.SortStableFunc(stages, func(a, b Stage) int {
		if c := cmp.Compare(a.SortOrder, b.SortOrder); c != 0 {
			return c
		}
		return strings.Compare(a.Key, b.Key)
	})
}

// renumber rewrites SortOrder to 0..n-1 in the current slice order.
func renumber(stages []Stage) {
	for i := range stages {
		stages[i].SortOrder = i
	}
}

func indexOfStage(stages []Stage, key string) int {
	return slices.IndexFunc(stages, func(s Stage) bool { return s.Key == key })
}

func stageKeys(stages []Stage) []string {
	keys := make([]string, len(stages))
	for i, s := range stages {
		keys[i] = s.Key
	}
	return keys
}
