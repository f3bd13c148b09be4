package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arnavshah/weekly-scheduler-go/pkg/scheduler"
)

// ValidateInput checks an availability payload (JSON or CSV upload) without
// solving it.
func (h *Handler) ValidateInput(c *gin.Context) {
	table, _, err := readAvailability(c)
	if err == nil {
		var model *scheduler.AvailabilityModel
		model, err = scheduler.NewAvailabilityModel(table)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{
				"valid": true,
				"stats": gin.H{
					"employee_count": len(model.Employees()),
					"shift_count":    len(model.Shifts()),
				},
			})
			return
		}
	}

	var malformed *scheduler.MalformedInputError
	if !errors.As(err, &malformed) {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"valid":  false,
		"error":  malformed.Error(),
		"row":    malformed.Row + 1,
		"column": malformed.Column,
	})
}
