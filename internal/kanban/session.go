package kanban

import (
	"context"
	"maps"
	"slices"
	"strings"
)

// Session is one client's in-memory copy of a board. Writes are applied
// locally first and then persisted; when persisting fails the local copy is
// rolled back and the error returned.
type Session struct {
	svc      *Service
	pipeline string
	stages   []Stage
	ranks    RankTable
	cards    map[string]Card
}

// OpenSession loads pipeline into a new Session.
func (s *Service) OpenSession(ctx context.Context, pipeline string) (*Session, error) {
	if err := validPipeline(pipeline); err != nil {
		return nil, err
	}
	sess := &Session{svc: s, pipeline: pipeline, ranks: s.ranksFor(pipeline)}
	if err := sess.Refresh(ctx); err != nil {
		return nil, err
	}
	return sess, nil
}

// Refresh reloads stages and cards from the stores.
func (sess *Session) Refresh(ctx context.Context) error {
	cards, err := sess.svc.members(ctx, sess.svc.records, sess.pipeline)
	if err != nil {
		return err
	}
	sess.stages = sess.svc.ListStages(ctx, sess.pipeline)
	sess.cards = make(map[string]Card, len(cards))
	for _, c := range cards {
		sess.cards[c.ID] = c
	}
	return nil
}

// Pipeline returns the session's pipeline ID.
func (sess *Session) Pipeline() string { return sess.pipeline }

// Stages returns the columns the session renders.
func (sess *Session) Stages() []Stage { return slices.Clone(sess.stages) }

// Card returns the local copy of a card.
func (sess *Session) Card(id string) (Card, bool) {
	c, ok := sess.cards[id]
	return c, ok
}

// View partitions the local cards.
func (sess *Session) View() Partition {
	cards := make([]Card, 0, len(sess.cards))
	for _, id := range slices.Sorted(maps.Keys(sess.cards)) {
		cards = append(cards, sess.cards[id])
	}
	return PartitionCards(sess.pipeline, sess.stages, cards, sess.ranks)
}

// UpdateCard applies patch locally, persists it, and restores the previous
// local copy if the store rejects it.
func (sess *Session) UpdateCard(ctx context.Context, id string, patch CardPatch) (Card, error) {
	prev, ok := sess.cards[id]
	if !ok {
		return Card{}, &NotFoundError{Kind: "card", ID: id}
	}
	sess.cards[id] = applyPatch(prev, patch)

	out, err := sess.svc.UpdateCard(ctx, id, patch)
	if err != nil {
		sess.cards[id] = prev
		return Card{}, err
	}
	if out.Pipeline != sess.pipeline {
		delete(sess.cards, id)
	} else {
		sess.cards[id] = out
	}
	return out, nil
}

// Controller returns a drag controller over this session's columns.
func (sess *Session) Controller() *Controller {
	return NewController(sess, sess.stages)
}

// Move is a complete drag of cardID onto stageKey.
func (sess *Session) Move(ctx context.Context, cardID, stageKey string) (DropOutcome, error) {
	card, ok := sess.cards[cardID]
	if !ok {
		return 0, &NotFoundError{Kind: "card", ID: cardID}
	}
	ctrl := sess.Controller()
	if err := ctrl.BeginDrag(card); err != nil {
		return 0, err
	}
	ctrl.DragOver(stageKey)
	return ctrl.Drop(ctx, stageKey)
}

func applyPatch(c Card, p CardPatch) Card {
	if p.Title != nil {
		c.Title = strings.TrimSpace(*p.Title)
	}
	if p.Pipeline != nil {
		c.Pipeline = *p.Pipeline
	}
	if p.StageRef != nil {
		c.StageRef = strings.TrimSpace(*p.StageRef)
	}
	if p.Rank != nil {
		c.Rank = strings.TrimSpace(*p.Rank)
	}
	if p.Fields != nil {
		c.Fields = mergeFields(c.Fields, p.Fields)
	}
	return c
}
