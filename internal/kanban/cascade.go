package kanban

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/hopewell/crm/internal/store"
)

// CascadeResult lists the cards a rename or delete rewrote.
type CascadeResult struct {
	Affected int      `json:"affected"`
	CardIDs  []string `json:"cardIds"`
}

// CascadeRename repoints every card of pipeline from oldKey to newKey. All
// updates commit together or not at all.
func (s *Service) CascadeRename(ctx context.Context, pipeline, oldKey, newKey string) (CascadeResult, error) {
	if err := validPipeline(pipeline); err != nil {
		return CascadeResult{}, err
	}
	oldKey, newKey = strings.TrimSpace(oldKey), strings.TrimSpace(newKey)
	if oldKey == "" || newKey == "" {
		return CascadeResult{}, invalid("key", "old and new keys are required")
	}
	if newKey == Uncategorised {
		return CascadeResult{}, invalid("key", "%q is reserved", Uncategorised)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var res CascadeResult
	err := s.atomic(ctx, "cascade rename", func(tx store.Store) error {
		var err error
		res, err = s.repoint(ctx, tx, pipeline, oldKey, newKey)
		return err
	})
	if err != nil {
		return CascadeResult{}, err
	}
	return res, nil
}

// CascadeDelete moves every card on deletedKey to fallbackKey (or clears
// the reference when the fallback is Uncategorised) and removes the stage,
// all in one atomic unit.
func (s *Service) CascadeDelete(ctx context.Context, pipeline, deletedKey, fallbackKey string) (CascadeResult, error) {
	if err := validPipeline(pipeline); err != nil {
		return CascadeResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cascadeDelete(ctx, pipeline, deletedKey, fallbackKey)
}

// cascadeDelete is CascadeDelete for callers already holding s.mu.
func (s *Service) cascadeDelete(ctx context.Context, pipeline, deletedKey, fallbackKey string) (CascadeResult, error) {
	if fallbackKey = strings.TrimSpace(fallbackKey); fallbackKey == "" {
		fallbackKey = Uncategorised
	}

	stages, err := s.loadStages(ctx, pipeline)
	if err != nil {
		return CascadeResult{}, err
	}
	i := indexOfStage(stages, deletedKey)
	if i < 0 {
		return CascadeResult{}, &NotFoundError{Kind: "stage", ID: pipeline + "/" + deletedKey}
	}
	if fallbackKey == deletedKey {
		return CascadeResult{}, invalid("fallback", "cannot fall back to the stage being deleted")
	}
	if fallbackKey != Uncategorised && indexOfStage(stages, fallbackKey) < 0 {
		return CascadeResult{}, invalid("fallback", "stage %q does not exist", fallbackKey)
	}

	target := fallbackKey
	if target == Uncategorised {
		target = ""
	}
	next := slices.Delete(slices.Clone(stages), i, i+1)
	renumber(next)

	var res CascadeResult
	err = s.commitStages(ctx, "delete stage", pipeline, stages, next, func(tx store.Store) error {
		var err error
		res, err = s.repoint(ctx, tx, pipeline, deletedKey, target)
		return err
	})
	if err != nil {
		return CascadeResult{}, err
	}
	return res, nil
}

// repoint rewrites StageRef from -> to for the members of pipeline, using
// tx for every read and write.
func (s *Service) repoint(ctx context.Context, tx store.Store, pipeline, from, to string) (CascadeResult, error) {
	cards, err := s.members(ctx, tx, pipeline)
	if err != nil {
		return CascadeResult{}, err
	}
	res := CascadeResult{CardIDs: []string{}}
	now := s.now().UTC()
	for _, c := range cards {
		if c.StageRef != from {
			continue
		}
		if _, err := tx.Update(ctx, cardsTable, c.ID, store.Record{"stage_ref": to, "updated_at": now}); err != nil {
			return CascadeResult{}, fmt.Errorf("repoint card %s: %w", c.ID, err)
		}
		res.CardIDs = append(res.CardIDs, c.ID)
	}
	res.Affected = len(res.CardIDs)
	return res, nil
}

// members returns the cards that belong to pipeline. For pipelines split by
// a classifier membership is computed, never read from the stored field.
func (s *Service) members(ctx context.Context, st store.Store, pipeline string) ([]Card, error) {
	cl, ok := s.catalog.ClassifierFor(pipeline)
	if !ok {
		return s.listCards(ctx, st, CardFilter{Pipeline: pipeline})
	}

	all, err := s.listCards(ctx, st, CardFilter{Kind: cl.Kind})
	if err != nil {
		return nil, err
	}
	primary, secondary, err := s.classifierStages(ctx, cl)
	if err != nil {
		return nil, err
	}
	var out []Card
	for _, c := range all {
		if !cl.Owns(c.Pipeline) {
			continue
		}
		if cl.Classify(c.StageRef, c.Pipeline, primary, secondary) == pipeline {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Service) classifierStages(ctx context.Context, cl Classifier) (primary, secondary []Stage, err error) {
	if primary, err = s.loadStages(ctx, cl.Primary); err != nil {
		return nil, nil, err
	}
	if secondary, err = s.loadStages(ctx, cl.Secondary); err != nil {
		return nil, nil, err
	}
	return primary, secondary, nil
}
