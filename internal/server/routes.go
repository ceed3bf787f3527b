package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/hopewell/crm/internal/kanban"
)

type handlers struct {
	svc      *kanban.Service
	validate *validator.Validate
}

// registerRoutes sets up all API routes on the gin router.
func registerRoutes(router *gin.Engine, h *handlers, broker *Broker) {
	api := router.Group("/api")

	api.GET("/pipelines", h.listPipelines)
	api.GET("/pipelines/:id/board", h.board)

	api.GET("/pipelines/:id/stages", h.listStages)
	api.POST("/pipelines/:id/stages", h.addStage)
	api.PUT("/pipelines/:id/stages/order", h.reorderStages)
	api.POST("/pipelines/:id/stages/reset", h.resetStages)
	api.PATCH("/pipelines/:id/stages/:key", h.updateStage)
	api.DELETE("/pipelines/:id/stages/:key", h.deleteStage)
	api.GET("/pipelines/:id/stages/:key/impact", h.stageImpact)

	api.POST("/pipelines/:id/cards", h.createCard)
	api.GET("/cards/:id", h.getCard)
	api.PATCH("/cards/:id", h.updateCard)
	api.DELETE("/cards/:id", h.deleteCard)
	api.POST("/cards/:id/move", h.moveCard)

	api.GET("/events", handleSSE(broker))
}

// bind decodes the JSON body into req and validates it. On failure the
// response has been written.
func (h *handlers) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return false
	}
	if err := h.validate.Struct(req); err != nil {
		badRequest(c, err.Error())
		return false
	}
	return true
}

func (h *handlers) listPipelines(c *gin.Context) {
	cat := h.svc.Catalog()
	out := make([]PipelineResponse, 0, len(cat.Pipelines))
	for _, id := range cat.IDs() {
		def, _ := cat.Definition(id)
		out = append(out, PipelineResponse{
			ID:     id,
			Kind:   def.Kind,
			Stages: h.svc.ListStages(c.Request.Context(), id),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) board(c *gin.Context) {
	p, err := h.svc.Board(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *handlers) listStages(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.ListStages(c.Request.Context(), c.Param("id")))
}

func (h *handlers) addStage(c *gin.Context) {
	var req CreateStageRequest
	if !h.bind(c, &req) {
		return
	}
	st, err := h.svc.AddStage(c.Request.Context(), c.Param("id"), kanban.StageInput{
		Label: req.Label,
		Color: req.Color,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

func (h *handlers) reorderStages(c *gin.Context) {
	var req ReorderStagesRequest
	if !h.bind(c, &req) {
		return
	}
	stages, err := h.svc.ReorderStages(c.Request.Context(), c.Param("id"), req.Keys)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stages)
}

func (h *handlers) resetStages(c *gin.Context) {
	stages, err := h.svc.ResetStages(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stages)
}

func (h *handlers) updateStage(c *gin.Context) {
	var req UpdateStageRequest
	if !h.bind(c, &req) {
		return
	}
	st, err := h.svc.EditStage(c.Request.Context(), c.Param("id"), c.Param("key"), kanban.StageEdit{
		Key:   req.Key,
		Label: req.Label,
		Color: req.Color,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *handlers) deleteStage(c *gin.Context) {
	res, err := h.svc.DeleteStage(c.Request.Context(), c.Param("id"), c.Param("key"), c.Query("fallback"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handlers) stageImpact(c *gin.Context) {
	n, err := h.svc.PreviewDelete(c.Request.Context(), c.Param("id"), c.Param("key"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ImpactResponse{Stage: c.Param("key"), Affected: n})
}

func (h *handlers) createCard(c *gin.Context) {
	var req CreateCardRequest
	if !h.bind(c, &req) {
		return
	}
	card, err := h.svc.CreateCard(c.Request.Context(), c.Param("id"), kanban.CardInput{
		Title:    req.Title,
		Kind:     req.Kind,
		StageRef: req.StageRef,
		Rank:     req.Rank,
		Fields:   req.Fields,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, card)
}

func (h *handlers) getCard(c *gin.Context) {
	card, err := h.svc.GetCard(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, card)
}

func (h *handlers) updateCard(c *gin.Context) {
	var req UpdateCardRequest
	if !h.bind(c, &req) {
		return
	}
	card, err := h.svc.UpdateCard(c.Request.Context(), c.Param("id"), req.patch())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, card)
}

func (h *handlers) deleteCard(c *gin.Context) {
	if err := h.svc.DeleteCard(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) moveCard(c *gin.Context) {
	var req MoveCardRequest
	if !h.bind(c, &req) {
		return
	}
	ctx := c.Request.Context()
	out, err := h.svc.OnCardMoved(ctx, c.Param("id"), req.Stage)
	if err != nil {
		writeError(c, err)
		return
	}
	card, err := h.svc.GetCard(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, MoveCardResponse{Outcome: out.String(), Card: card})
}
