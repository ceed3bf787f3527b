package kanban

import (
	"math"
	"strings"
)

// RankTable maps a secondary rank label (priority, risk) to its sort
// position. Lookups are case-insensitive; unmapped labels sort last.
type RankTable map[string]int

var (
	// PriorityRanks orders task cards.
	PriorityRanks = RankTable{"urgent": 0, "high": 1, "medium": 2, "low": 3}
	// RiskRanks orders recovery-seeker cards.
	RiskRanks = RankTable{"critical": 0, "high": 1, "medium": 2, "low": 3}
)

// Rank returns the position of label, or math.MaxInt when unmapped.
func (r RankTable) Rank(label string) int {
	if n, ok := r[strings.ToLower(strings.TrimSpace(label))]; ok {
		return n
	}
	return math.MaxInt
}

// RanksNamed returns the table for "priority" or "risk".
func RanksNamed(name string) RankTable {
	if name == "risk" {
		return RiskRanks
	}
	return PriorityRanks
}
