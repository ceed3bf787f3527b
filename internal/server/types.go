package server

import "github.com/hopewell/crm/internal/kanban"

// CreateStageRequest is the body of POST /api/pipelines/:id/stages.
type CreateStageRequest struct {
	Label string `json:"label" validate:"required,max=64"`
	Color string `json:"color" validate:"omitempty,hexcolor"`
}

// UpdateStageRequest is the body of PATCH /api/pipelines/:id/stages/:key.
// At least one field must be set.
type UpdateStageRequest struct {
	Key   string `json:"key"   validate:"required_without_all=Label Color"`
	Label string `json:"label" validate:"omitempty,max=64"`
	Color string `json:"color" validate:"omitempty,hexcolor"`
}

// ReorderStagesRequest is the body of PUT /api/pipelines/:id/stages/order.
type ReorderStagesRequest struct {
	Keys []string `json:"keys" validate:"required,min=1,dive,required"`
}

// CreateCardRequest is the body of POST /api/pipelines/:id/cards.
type CreateCardRequest struct {
	Title    string            `json:"title"    validate:"required,max=200"`
	Kind     string            `json:"kind"     validate:"omitempty,oneof=task seeker"`
	StageRef string            `json:"stageRef" validate:"omitempty,max=64"`
	Rank     string            `json:"rank"     validate:"omitempty,max=32"`
	Fields   map[string]string `json:"fields"`
}

// UpdateCardRequest is the body of PATCH /api/cards/:id. Absent fields are
// left unchanged.
type UpdateCardRequest struct {
	Title    *string           `json:"title,omitempty"    validate:"omitempty,min=1,max=200"`
	Pipeline *string           `json:"pipeline,omitempty" validate:"omitempty,min=1"`
	StageRef *string           `json:"stageRef,omitempty" validate:"omitempty,max=64"`
	Rank     *string           `json:"rank,omitempty"     validate:"omitempty,max=32"`
	Fields   map[string]string `json:"fields,omitempty"`
}

func (r UpdateCardRequest) patch() kanban.CardPatch {
	return kanban.CardPatch{
		Title:    r.Title,
		Pipeline: r.Pipeline,
		StageRef: r.StageRef,
		Rank:     r.Rank,
		Fields:   r.Fields,
	}
}

// MoveCardRequest is the body of POST /api/cards/:id/move.
type MoveCardRequest struct {
	Stage string `json:"stage" validate:"required"`
}

// MoveCardResponse reports the outcome of a move.
type MoveCardResponse struct {
	Outcome string      `json:"outcome"`
	Card    kanban.Card `json:"card"`
}

// PipelineResponse describes one pipeline of the catalog.
type PipelineResponse struct {
	ID     string         `json:"id"`
	Kind   string         `json:"kind"`
	Stages []kanban.Stage `json:"stages"`
}

// ImpactResponse is the number of cards a stage deletion would move.
type ImpactResponse struct {
	Stage    string `json:"stage"`
	Affected int    `json:"affected"`
}
