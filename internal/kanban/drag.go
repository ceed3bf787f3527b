package kanban

import (
	"context"
	"slices"
)

// DragState is the state of a Controller.
type DragState int

const (
	Idle DragState = iota
	Dragging
)

func (s DragState) String() string {
	if s == Dragging {
		return "dragging"
	}
	return "idle"
}

// DropOutcome reports what a Drop did.
type DropOutcome int

const (
	// Moved means exactly one card update was written.
	Moved DropOutcome = iota + 1
	// NoOp means the card was dropped on the column it already occupies.
	NoOp
	// Cancelled means the drop target was not a column of the board.
	Cancelled
)

func (o DropOutcome) String() string {
	switch o {
	case Moved:
		return "moved"
	case NoOp:
		return "noop"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// CardMover persists a stage change. *Service and *Session implement it.
type CardMover interface {
	UpdateCard(ctx context.Context, id string, patch CardPatch) (Card, error)
}

// Controller mediates one board's drag gestures: Idle -> Dragging ->
// Idle, writing at most one card update per gesture. It is not safe for
// concurrent use; a board has a single pointer.
type Controller struct {
	mover   CardMover
	columns []string

	state DragState
	card  Card
	hover string
}

// NewController returns an idle controller whose drop targets are stages
// plus the uncategorised bucket.
func NewController(mover CardMover, stages []Stage) *Controller {
	cols := append(stageKeys(stages), Uncategorised)
	return &Controller{mover: mover, columns: cols}
}

// State returns the current state.
func (c *Controller) State() DragState { return c.state }

// Dragged returns the card being dragged.
func (c *Controller) Dragged() (Card, bool) {
	return c.card, c.state == Dragging
}

// Hover returns the column last reported by DragOver, or "".
func (c *Controller) Hover() string { return c.hover }

// BeginDrag picks up card. No data changes.
func (c *Controller) BeginDrag(card Card) error {
	if c.state == Dragging {
		return invalid("drag", "card %s is already being dragged", c.card.ID)
	}
	c.state = Dragging
	c.card = card
	c.hover = ""
	return nil
}

// DragOver records the column under the pointer as a highlight hint.
func (c *Controller) DragOver(stageKey string) {
	if c.state != Dragging {
		return
	}
	if c.isColumn(stageKey) {
		c.hover = stageKey
	} else {
		c.hover = ""
	}
}

// Drop ends the gesture on stageKey. Dropping on the card's own column is a
// NoOp and dropping outside the board is Cancelled; neither writes. The
// controller is Idle afterwards whatever the outcome.
func (c *Controller) Drop(ctx context.Context, stageKey string) (DropOutcome, error) {
	if c.state != Dragging {
		return 0, invalid("drag", "no drag in progress")
	}
	card := c.card
	c.reset()

	if !c.isColumn(stageKey) {
		return Cancelled, nil
	}
	if stageKey == c.columnOf(card.StageRef) {
		return NoOp, nil
	}

	target := stageKey
	if target == Uncategorised {
		target = ""
	}
	if _, err := c.mover.UpdateCard(ctx, card.ID, CardPatch{StageRef: &target}); err != nil {
		return 0, err
	}
	return Moved, nil
}

// Cancel abandons the gesture with no data effect.
func (c *Controller) Cancel() {
	c.reset()
}

func (c *Controller) reset() {
	c.state = Idle
	c.card = Card{}
	c.hover = ""
}

func (c *Controller) isColumn(key string) bool {
	return key != "" && slices.Contains(c.columns, key)
}

// columnOf maps a StageRef to the column the card renders in.
func (c *Controller) columnOf(stageRef string) string {
	if stageRef != Uncategorised && c.isColumn(stageRef) {
		return stageRef
	}
	return Uncategorised
}

// OnCardMoved is the entry point for a rendering layer that reports a
// completed drag of cardID onto newStageKey. It runs the same rules as a
// Controller gesture on the card's board.
func (s *Service) OnCardMoved(ctx context.Context, cardID, newStageKey string) (DropOutcome, error) {
	card, err := s.GetCard(ctx, cardID)
	if err != nil {
		return 0, err
	}
	ctrl := NewController(s, s.ListStages(ctx, card.Pipeline))
	if err := ctrl.BeginDrag(card); err != nil {
		return 0, err
	}
	ctrl.DragOver(newStageKey)
	return ctrl.Drop(ctx, newStageKey)
}
