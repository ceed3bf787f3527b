package kanban

import (
	"context"
	"encoding/json"
	"slices"
	"strings"

	"github.com/hopewell/crm/internal/store"
	log "github.com/sirupsen/logrus"
)

func stagesKey(pipeline string) string {
	return "stages/" + pipeline
}

// loadStages returns the saved stage set of pipeline, or its catalog
// defaults when nothing has been saved, sorted by SortOrder.
func (s *Service) loadStages(ctx context.Context, pipeline string) ([]Stage, error) {
	data, ok, err := s.configs.Load(ctx, stagesKey(pipeline))
	if err != nil {
		return nil, persistence("load stages", err)
	}
	if !ok {
		return s.defaultStages(pipeline), nil
	}
	var stages []Stage
	if err := json.Unmarshal(data, &stages); err != nil {
		return nil, persistence("decode stages", err)
	}
	sortStages(stages)
	return stages, nil
}

func (s *Service) defaultStages(pipeline string) []Stage {
	d, _ := s.catalog.Definition(pipeline)
	out := slices.Clone(d.Defaults)
	sortStages(out)
	return out
}

func (s *Service) saveStages(ctx context.Context, pipeline string, stages []Stage) error {
	if stages == nil {
		stages = []Stage{}
	}
	data, err := json.Marshal(stages)
	if err != nil {
		return persistence("encode stages", err)
	}
	if err := s.configs.Save(ctx, stagesKey(pipeline), data); err != nil {
		return persistence("save stages", err)
	}
	return nil
}

// keyspace returns stages plus the stages of a classifier sibling, whose
// keys must stay disjoint so card membership is unambiguous.
func (s *Service) keyspace(ctx context.Context, pipeline string, stages []Stage) ([]Stage, error) {
	cl, ok := s.catalog.ClassifierFor(pipeline)
	if !ok {
		return stages, nil
	}
	sibling, err := s.loadStages(ctx, cl.Other(pipeline))
	if err != nil {
		return nil, err
	}
	return append(slices.Clone(stages), sibling...), nil
}

// commitStages saves next as the stage set of pipeline inside one atomic
// unit with cascade. If the unit fails after the save went through, the
// previous set is written back.
func (s *Service) commitStages(ctx context.Context, op, pipeline string, prev, next []Stage, cascade func(tx store.Store) error) error {
	saved := false
	err := s.atomic(ctx, op, func(tx store.Store) error {
		if cascade != nil {
			if err := cascade(tx); err != nil {
				return err
			}
		}
		if err := s.saveStages(ctx, pipeline, next); err != nil {
			return err
		}
		saved = true
		return nil
	})
	if err != nil && saved {
		if rerr := s.saveStages(ctx, pipeline, prev); rerr != nil {
			s.log.WithError(rerr).WithField("pipeline", pipeline).Error("restore stage set after failed commit")
		}
	}
	return err
}

// ListStages returns the ordered stages of pipeline. It never fails: an
// unknown pipeline yields an empty slice and a store failure falls back to
// the catalog defaults.
func (s *Service) ListStages(ctx context.Context, pipeline string) []Stage {
	if validPipeline(pipeline) != nil {
		return []Stage{}
	}
	stages, err := s.loadStages(ctx, pipeline)
	if err != nil {
		s.log.WithError(err).WithField("pipeline", pipeline).Warn("stage set unavailable, using defaults")
		stages = s.defaultStages(pipeline)
	}
	if stages == nil {
		stages = []Stage{}
	}
	return stages
}

// AddStage appends a stage whose key is derived from the label.
func (s *Service) AddStage(ctx context.Context, pipeline string, in StageInput) (Stage, error) {
	if err := validPipeline(pipeline); err != nil {
		return Stage{}, err
	}
	label := strings.TrimSpace(in.Label)
	if label == "" {
		return Stage{}, invalid("label", "must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stages, err := s.loadStages(ctx, pipeline)
	if err != nil {
		return Stage{}, err
	}
	taken, err := s.keyspace(ctx, pipeline, stages)
	if err != nil {
		return Stage{}, err
	}

	st := Stage{
		Key:       uniqueKey(Slug(label), taken),
		Label:     label,
		Color:     strings.TrimSpace(in.Color),
		SortOrder: nextSortOrder(stages),
	}
	if st.Color == "" {
		st.Color = palette[len(stages)%len(palette)]
	}
	if err := s.saveStages(ctx, pipeline, append(stages, st)); err != nil {
		return Stage{}, err
	}

	s.log.WithFields(log.Fields{"pipeline": pipeline, "stage": st.Key}).Info("stage added")
	s.events.StageAdded(pipeline, st)
	return st, nil
}

func nextSortOrder(stages []Stage) int {
	next := 0
	for _, st := range stages {
		if st.SortOrder >= next {
			next = st.SortOrder + 1
		}
	}
	return next
}

// StageEdit changes several attributes of a stage at once. Empty fields
// keep the current value.
type StageEdit struct {
	Key   string
	Label string
	Color string
}

// RenameStage changes a stage's key and/or label. A key change repoints
// every card of the pipeline in the same atomic unit as the registry save,
// so no caller observes cards naming the vanished key. An empty newKey or
// newLabel keeps the current value.
func (s *Service) RenameStage(ctx context.Context, pipeline, stageKey, newKey, newLabel string) (Stage, error) {
	return s.EditStage(ctx, pipeline, stageKey, StageEdit{Key: newKey, Label: newLabel})
}

// RecolorStage sets a stage's presentation colour.
func (s *Service) RecolorStage(ctx context.Context, pipeline, stageKey, color string) (Stage, error) {
	if strings.TrimSpace(color) == "" {
		return Stage{}, invalid("color", "must not be empty")
	}
	return s.EditStage(ctx, pipeline, stageKey, StageEdit{Color: color})
}

// EditStage applies edit to one stage. Either every change lands, along
// with the card cascade of a key change, or none does.
func (s *Service) EditStage(ctx context.Context, pipeline, stageKey string, edit StageEdit) (Stage, error) {
	if err := validPipeline(pipeline); err != nil {
		return Stage{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stages, err := s.loadStages(ctx, pipeline)
	if err != nil {
		return Stage{}, err
	}
	i := indexOfStage(stages, stageKey)
	if i < 0 {
		return Stage{}, &NotFoundError{Kind: "stage", ID: pipeline + "/" + stageKey}
	}

	newKey := strings.TrimSpace(edit.Key)
	if newKey == "" {
		newKey = stageKey
	}
	if newKey == Uncategorised {
		return Stage{}, invalid("key", "%q is reserved", Uncategorised)
	}
	if newKey != stageKey {
		taken, err := s.keyspace(ctx, pipeline, stages)
		if err != nil {
			return Stage{}, err
		}
		if indexOfStage(taken, newKey) >= 0 {
			return Stage{}, invalid("key", "stage %q already exists", newKey)
		}
	}

	updated := stages[i]
	updated.Key = newKey
	if l := strings.TrimSpace(edit.Label); l != "" {
		updated.Label = l
	}
	if c := strings.TrimSpace(edit.Color); c != "" {
		updated.Color = c
	}
	next := slices.Clone(stages)
	next[i] = updated

	var res CascadeResult
	var cascade func(tx store.Store) error
	if newKey != stageKey {
		cascade = func(tx store.Store) error {
			var err error
			res, err = s.repoint(ctx, tx, pipeline, stageKey, newKey)
			return err
		}
	}
	if err := s.commitStages(ctx, "edit stage", pipeline, stages, next, cascade); err != nil {
		return Stage{}, err
	}

	s.log.WithFields(log.Fields{
		"pipeline": pipeline, "stage": stageKey, "new_key": newKey, "affected": res.Affected,
	}).Info("stage updated")
	s.events.StageRenamed(pipeline, stageKey, updated, res.Affected)
	return updated, nil
}

// DeleteStage removes a stage after moving its cards to fallbackKey, which
// must be another registered stage or Uncategorised ("" is Uncategorised).
func (s *Service) DeleteStage(ctx context.Context, pipeline, stageKey, fallbackKey string) (CascadeResult, error) {
	if err := validPipeline(pipeline); err != nil {
		return CascadeResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.cascadeDelete(ctx, pipeline, stageKey, fallbackKey)
	if err != nil {
		return CascadeResult{}, err
	}
	if fallbackKey = strings.TrimSpace(fallbackKey); fallbackKey == "" {
		fallbackKey = Uncategorised
	}
	s.log.WithFields(log.Fields{
		"pipeline": pipeline, "stage": stageKey, "fallback": fallbackKey, "affected": res.Affected,
	}).Info("stage deleted")
	s.events.StageDeleted(pipeline, stageKey, fallbackKey, res.Affected)
	return res, nil
}

// PreviewDelete counts the cards a DeleteStage of stageKey would move.
func (s *Service) PreviewDelete(ctx context.Context, pipeline, stageKey string) (int, error) {
	if err := validPipeline(pipeline); err != nil {
		return 0, err
	}
	stages, err := s.loadStages(ctx, pipeline)
	if err != nil {
		return 0, err
	}
	if indexOfStage(stages, stageKey) < 0 {
		return 0, &NotFoundError{Kind: "stage", ID: pipeline + "/" + stageKey}
	}
	cards, err := s.members(ctx, s.records, pipeline)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range cards {
		if c.StageRef == stageKey {
			n++
		}
	}
	return n, nil
}

// ReorderStages rewrites SortOrder to follow orderedKeys, which must name
// every existing stage exactly once.
func (s *Service) ReorderStages(ctx context.Context, pipeline string, orderedKeys []string) ([]Stage, error) {
	if err := validPipeline(pipeline); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stages, err := s.loadStages(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	if len(orderedKeys) != len(stages) {
		return nil, invalid("order", "got %d keys, pipeline has %d stages", len(orderedKeys), len(stages))
	}
	next := make([]Stage, 0, len(stages))
	seen := make(map[string]bool, len(orderedKeys))
	for _, k := range orderedKeys {
		if seen[k] {
			return nil, invalid("order", "stage %q listed twice", k)
		}
		seen[k] = true
		i := indexOfStage(stages, k)
		if i < 0 {
			return nil, invalid("order", "unknown stage %q", k)
		}
		next = append(next, stages[i])
	}
	renumber(next)
	if err := s.saveStages(ctx, pipeline, next); err != nil {
		return nil, err
	}

	s.log.WithFields(log.Fields{"pipeline": pipeline, "order": strings.Join(orderedKeys, ",")}).Info("stages reordered")
	s.events.StagesReordered(pipeline, slices.Clone(next))
	return next, nil
}

// ResetStages restores the catalog defaults. Cards are left untouched and
// may become uncategorised. A default key the sibling pipeline has taken in
// the meantime is a ValidationError.
func (s *Service) ResetStages(ctx context.Context, pipeline string) ([]Stage, error) {
	if err := validPipeline(pipeline); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stages := s.defaultStages(pipeline)
	if cl, ok := s.catalog.ClassifierFor(pipeline); ok {
		sibling, err := s.loadStages(ctx, cl.Other(pipeline))
		if err != nil {
			return nil, err
		}
		for _, st := range stages {
			if indexOfStage(sibling, st.Key) >= 0 {
				return nil, invalid("reset", "default stage %q is in use by %s", st.Key, cl.Other(pipeline))
			}
		}
	}
	if err := s.saveStages(ctx, pipeline, stages); err != nil {
		return nil, err
	}
	s.log.WithField("pipeline", pipeline).Info("stages reset to defaults")
	s.events.StagesReordered(pipeline, slices.Clone(stages))
	return stages, nil
}
