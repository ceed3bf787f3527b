package kanban

import (
	"cmp"
	"context"
	"slices"
	"strings"
)

// Bucket is one rendered column.
type Bucket struct {
	Stage Stage  `json:"stage"`
	Cards []Card `json:"cards"`
}

// Partition is a pipeline's cards split into columns: the registered stages
// in order, then the uncategorised bucket.
type Partition struct {
	Pipeline string   `json:"pipeline"`
	Buckets  []Bucket `json:"buckets"`
}

// Bucket returns the column with key.
func (p Partition) Bucket(key string) (Bucket, bool) {
	for _, b := range p.Buckets {
		if b.Stage.Key == key {
			return b, true
		}
	}
	return Bucket{}, false
}

// Uncategorised returns the trailing bucket of cards with no matching stage.
func (p Partition) Uncategorised() Bucket {
	b, _ := p.Bucket(Uncategorised)
	return b
}

// Count returns the number of cards across all buckets.
func (p Partition) Count() int {
	n := 0
	for _, b := range p.Buckets {
		n += len(b.Cards)
	}
	return n
}

// Locate returns the key of the bucket holding cardID.
func (p Partition) Locate(cardID string) (string, bool) {
	for _, b := range p.Buckets {
		for _, c := range b.Cards {
			if c.ID == cardID {
				return b.Stage.Key, true
			}
		}
	}
	return "", false
}

// PartitionCards places every card in exactly one bucket. A card goes to the
// first stage whose key equals its StageRef, or to the uncategorised bucket.
// Buckets are ordered by rank then card ID, so the output depends only on
// the inputs.
func PartitionCards(pipeline string, stages []Stage, cards []Card, ranks RankTable) Partition {
	ordered := slices.Clone(stages)
	sortStages(ordered)

	p := Partition{Pipeline: pipeline, Buckets: make([]Bucket, 0, len(ordered)+1)}
	index := make(map[string]int, len(ordered))
	for _, st := range ordered {
		if _, dup := index[st.Key]; !dup {
			index[st.Key] = len(p.Buckets)
		}
		p.Buckets = append(p.Buckets, Bucket{Stage: st, Cards: []Card{}})
	}
	uncat := len(p.Buckets)
	p.Buckets = append(p.Buckets, Bucket{
		Stage: Stage{Key: Uncategorised, Label: "Uncategorised", Color: "#9ca3af", SortOrder: len(ordered)},
		Cards: []Card{},
	})

	for _, c := range cards {
		i, ok := index[c.StageRef]
		if !ok || c.StageRef == "" {
			i = uncat
		}
		p.Buckets[i].Cards = append(p.Buckets[i].Cards, c)
	}
	for i := range p.Buckets {
		sortCards(p.Buckets[i].Cards, ranks)
	}
	return p
}

func sortCards(cards []Card, ranks RankTable) {
	slices.SortStableFunc(cards, func(a, b Card) int {
		if c := cmp.Compare(ranks.Rank(a.Rank), ranks.Rank(b.Rank)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// Partition splits cards using pipeline's current stages and rank table.
func (s *Service) Partition(ctx context.Context, pipeline string, cards []Card) Partition {
	return PartitionCards(pipeline, s.ListStages(ctx, pipeline), cards, s.ranksFor(pipeline))
}

// Board loads pipeline's member cards and partitions them.
func (s *Service) Board(ctx context.Context, pipeline string) (Partition, error) {
	if err := validPipeline(pipeline); err != nil {
		return Partition{}, err
	}
	cards, err := s.members(ctx, s.records, pipeline)
	if err != nil {
		return Partition{}, err
	}
	return s.Partition(ctx, pipeline, cards), nil
}
