package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hopewell/crm/internal/kanban"
	"github.com/moogar0880/problems"
	log "github.com/sirupsen/logrus"
)

func badRequest(c *gin.Context, detail string) {
	problem := problems.NewStatusProblem(http.StatusBadRequest).
		WithInstance(c.Request.URL.Path).
		WithType("validation_error").
		WithDetail(detail)

	c.JSON(http.StatusBadRequest, problem)
}

// writeError maps engine errors to RFC 7807 problem responses.
func writeError(c *gin.Context, err error) {
	path := c.Request.URL.Path

	switch {
	case kanban.IsValidation(err):
		badRequest(c, err.Error())

	case kanban.IsNotFound(err):
		problem := problems.NewStatusProblem(http.StatusNotFound).
			WithInstance(path).
			WithType("not_found").
			WithDetail(err.Error())

		c.JSON(http.StatusNotFound, problem)

	case kanban.IsPersistence(err):
		log.WithError(err).WithField("path", path).Error("storage unavailable")
		problem := problems.NewStatusProblem(http.StatusServiceUnavailable).
			WithInstance(path).
			WithType("persistence_error").
			WithDetail("storage is unavailable, retry later")

		c.JSON(http.StatusServiceUnavailable, problem)

	default:
		log.WithError(err).WithField("path", path).Error("unexpected error")
		problem := problems.NewStatusProblem(http.StatusInternalServerError).
			WithInstance(path).
			WithType("internal_error").
			WithError(err)

		c.JSON(http.StatusInternalServerError, problem)
	}
}
