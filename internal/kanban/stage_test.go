package kanban

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"To Do", "to-do"},
		{"  Assessment Booked  ", "assessment-booked"},
		{"On-Hold!!", "on-hold"},
		{"Stage 2", "stage-2"},
		{"Ünïcode Stage", "ünïcode-stage"},
		{"***", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, Slug(tt.label))
		})
	}
}

func TestUniqueKey(t *testing.T) {
	stages := []Stage{{Key: "a"}, {Key: "a-2"}, {Key: "b"}}

	assert.Equal(t, "c", uniqueKey("c", stages))
	assert.Equal(t, "a-3", uniqueKey("a", stages))
	assert.Equal(t, "b-2", uniqueKey("b", stages))
	assert.Equal(t, "stage", uniqueKey("", stages))
	assert.Equal(t, "uncategorised-2", uniqueKey(Uncategorised, nil))
}

func TestSortStages_TiesBreakOnKey(t *testing.T) {
	stages := []Stage{
		{Key: "z", SortOrder: 1},
		{Key: "b", SortOrder: 0},
		{Key: "a", SortOrder: 1},
	}
	sortStages(stages)
	assert.Equal(t, []string{"b", "a", "z"}, stageKeys(stages))
}

func TestSortStages_ExtremeOrders(t *testing.T) {
	stages := []Stage{
		{Key: "last", SortOrder: math.MaxInt},
		{Key: "first", SortOrder: math.MinInt},
		{Key: "middle", SortOrder: 0},
	}
	sortStages(stages)
	assert.Equal(t, []string{"first", "middle", "last"}, stageKeys(stages))
}

func TestRankTable(t *testing.T) {
	assert.Equal(t, 0, PriorityRanks.Rank("Urgent"))
	assert.Equal(t, 3, PriorityRanks.Rank(" low "))
	assert.Equal(t, math.MaxInt, PriorityRanks.Rank("critical"))
	assert.Equal(t, 0, RiskRanks.Rank("critical"))
	assert.Equal(t, math.MaxInt, RiskRanks.Rank(""))

	assert.Equal(t, RiskRanks, RanksNamed("risk"))
	assert.Equal(t, PriorityRanks, RanksNamed("priority"))
	assert.Equal(t, PriorityRanks, RanksNamed("anything"))
}
