package kanban

import (
	"context"
	"errors"
	"strings"

	"github.com/hopewell/crm/internal/store"
	log "github.com/sirupsen/logrus"
)

// CreateCard stores a new card in pipeline. Without an explicit StageRef
// the card starts in the pipeline's first stage.
func (s *Service) CreateCard(ctx context.Context, pipeline string, in CardInput) (Card, error) {
	if err := validPipeline(pipeline); err != nil {
		return Card{}, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Card{}, invalid("title", "must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kind, err := s.kindFor(pipeline, strings.TrimSpace(in.Kind))
	if err != nil {
		return Card{}, err
	}

	stageRef := strings.TrimSpace(in.StageRef)
	if stageRef == "" {
		stages, err := s.loadStages(ctx, pipeline)
		if err != nil {
			return Card{}, err
		}
		if len(stages) > 0 {
			stageRef = stages[0].Key
		}
	}

	owner, err := s.classify(ctx, kind, pipeline, stageRef)
	if err != nil {
		return Card{}, err
	}

	now := s.now().UTC()
	c := Card{
		ID:        s.newID(),
		Pipeline:  owner,
		Kind:      kind,
		StageRef:  stageRef,
		Rank:      strings.TrimSpace(in.Rank),
		Title:     title,
		Fields:    mergeFields(nil, in.Fields),
		CreatedAt: now,
		UpdatedAt: now,
	}
	rec, err := c.toRecord()
	if err != nil {
		return Card{}, invalid("fields", "%v", err)
	}
	saved, err := s.records.Insert(ctx, cardsTable, rec)
	if err != nil {
		return Card{}, persistence("create card", err)
	}
	out, err := cardFromRecord(saved)
	if err != nil {
		return Card{}, persistence("create card", err)
	}

	s.log.WithFields(log.Fields{"pipeline": owner, "card": out.ID, "stage": out.StageRef}).Info("card created")
	return out, nil
}

// GetCard returns one card.
func (s *Service) GetCard(ctx context.Context, id string) (Card, error) {
	return s.getCard(ctx, s.records, id)
}

func (s *Service) getCard(ctx context.Context, st store.Store, id string) (Card, error) {
	recs, err := st.List(ctx, cardsTable, store.Filter{"id": id})
	if err != nil {
		return Card{}, persistence("get card", err)
	}
	if len(recs) == 0 {
		return Card{}, &NotFoundError{Kind: "card", ID: id}
	}
	c, err := cardFromRecord(recs[0])
	if err != nil {
		return Card{}, persistence("get card", err)
	}
	return c, nil
}

// ListCards returns cards matching filter, ordered by id.
func (s *Service) ListCards(ctx context.Context, filter CardFilter) ([]Card, error) {
	return s.listCards(ctx, s.records, filter)
}

func (s *Service) listCards(ctx context.Context, st store.Store, filter CardFilter) ([]Card, error) {
	recs, err := st.List(ctx, cardsTable, filter.toStore())
	if err != nil {
		return nil, persistence("list cards", err)
	}
	out := make([]Card, 0, len(recs))
	for _, r := range recs {
		c, err := cardFromRecord(r)
		if err != nil {
			return nil, persistence("list cards", err)
		}
		out = append(out, c)
	}
	return out, nil
}

// UpdateCard applies patch. StageRef is not checked against the registry;
// a dangling reference is legal and renders as uncategorised.
func (s *Service) UpdateCard(ctx context.Context, id string, patch CardPatch) (Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.getCard(ctx, s.records, id)
	if err != nil {
		return Card{}, err
	}

	rec := store.Record{}
	if patch.Title != nil {
		t := strings.TrimSpace(*patch.Title)
		if t == "" {
			return Card{}, invalid("title", "must not be empty")
		}
		rec["title"] = t
	}
	if patch.Rank != nil {
		rec["rank"] = strings.TrimSpace(*patch.Rank)
	}
	if patch.Fields != nil {
		fields, err := encodeFields(mergeFields(cur.Fields, patch.Fields))
		if err != nil {
			return Card{}, invalid("fields", "%v", err)
		}
		rec["fields"] = fields
	}

	pipeline := cur.Pipeline
	if patch.Pipeline != nil {
		if err := validPipeline(*patch.Pipeline); err != nil {
			return Card{}, err
		}
		if _, err := s.kindFor(*patch.Pipeline, cur.Kind); err != nil {
			return Card{}, err
		}
		pipeline = *patch.Pipeline
	}
	stageRef := cur.StageRef
	if patch.StageRef != nil {
		stageRef = strings.TrimSpace(*patch.StageRef)
		rec["stage_ref"] = stageRef
	}
	if patch.Pipeline != nil || patch.StageRef != nil {
		owner, err := s.classify(ctx, cur.Kind, pipeline, stageRef)
		if err != nil {
			return Card{}, err
		}
		rec["pipeline"] = owner
	}
	rec["updated_at"] = s.now().UTC()

	saved, err := s.records.Update(ctx, cardsTable, id, rec)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Card{}, &NotFoundError{Kind: "card", ID: id}
		}
		return Card{}, persistence("update card", err)
	}
	out, err := cardFromRecord(saved)
	if err != nil {
		return Card{}, persistence("update card", err)
	}

	if out.StageRef != cur.StageRef || out.Pipeline != cur.Pipeline {
		s.log.WithFields(log.Fields{
			"pipeline": out.Pipeline, "card": id, "from": cur.StageRef, "to": out.StageRef,
		}).Info("card moved")
		s.events.CardMoved(out.Pipeline, id, cur.StageRef, out.StageRef)
	}
	return out, nil
}

// DeleteCard removes a card. Deleting a missing card is an error.
func (s *Service) DeleteCard(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.records.Delete(ctx, cardsTable, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &NotFoundError{Kind: "card", ID: id}
		}
		return persistence("delete card", err)
	}
	s.log.WithField("card", id).Info("card deleted")
	return nil
}

// kindFor resolves the card kind for pipeline. A known pipeline only holds
// its own kind, since its board lists nothing else; unknown pipelines take
// any kind and default to task.
func (s *Service) kindFor(pipeline, kind string) (string, error) {
	def, known := s.catalog.Definition(pipeline)
	if kind == "" {
		return def.Kind, nil
	}
	if known && kind != def.Kind {
		return "", invalid("kind", "pipeline %s holds %s cards, not %s", pipeline, def.Kind, kind)
	}
	return kind, nil
}

// classify returns the pipeline a card of kind should be recorded under.
// Only kinds split by a classifier can change pipeline implicitly.
func (s *Service) classify(ctx context.Context, kind, pipeline, stageRef string) (string, error) {
	cl, ok := s.catalog.ClassifierForKind(kind)
	if !ok || !cl.Owns(pipeline) {
		return pipeline, nil
	}
	primary, secondary, err := s.classifierStages(ctx, cl)
	if err != nil {
		return "", err
	}
	return cl.Classify(stageRef, pipeline, primary, secondary), nil
}
