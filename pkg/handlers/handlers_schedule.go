package handlers

import (
	"bytes"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arnavshah/weekly-scheduler-go/pkg/database"
	"github.com/arnavshah/weekly-scheduler-go/pkg/export"
	"github.com/arnavshah/weekly-scheduler-go/pkg/models"
	"github.com/arnavshah/weekly-scheduler-go/pkg/scheduler"
	"github.com/arnavshah/weekly-scheduler-go/pkg/session"
)

const (
	csvContentType  = "text/csv; charset=utf-8"
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// readAvailability accepts either a multipart upload in availability_file or
// a JSON AvailabilityInput body.
func readAvailability(c *gin.Context) (scheduler.Table, *int64, error) {
	seed, err := parseSeed(c.Query("seed"))
	if err != nil {
		return scheduler.Table{}, nil, err
	}

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("availability_file")
		if err != nil {
			return scheduler.Table{}, nil, &scheduler.MalformedInputError{Reason: "availability_file is required", Row: -1}
		}
		if v := c.PostForm("seed"); v != "" {
			if seed, err = parseSeed(v); err != nil {
				return scheduler.Table{}, nil, err
			}
		}

		f, err := fh.Open()
		if err != nil {
			return scheduler.Table{}, nil, fmt.Errorf("open upload: %w", err)
		}
		defer f.Close()

		table, err := scheduler.ReadCSV(f)
		return table, seed, err
	}

	var input models.AvailabilityInput
	if err := c.ShouldBindJSON(&input); err != nil {
		return scheduler.Table{}, nil, &scheduler.MalformedInputError{Reason: err.Error(), Row: -1}
	}
	if input.Seed != nil {
		seed = input.Seed
	}
	table, err := input.Table()
	return table, seed, err
}

func parseSeed(v string) (*int64, error) {
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, &scheduler.MalformedInputError{Reason: fmt.Sprintf("seed %q is not an integer", v), Row: -1}
	}
	return &n, nil
}

// view runs fn on a session owned by the calling key. Sessions owned by other
// keys are reported as not found.
func (h *Handler) view(c *gin.Context, id string, fn func(*session.Session) error) error {
	owner := c.GetString(ctxUserID)
	return h.Sessions.View(c.Request.Context(), id, func(s *session.Session) error {
		if s.Owner != owner {
			return session.ErrNotFound
		}
		return fn(s)
	})
}

func (h *Handler) recordUsage(c *gin.Context, shifts, employees int) {
	k := currentKey(c)
	if k == nil {
		return
	}
	c.Set(ctxMetered, true)
	if err := h.Store.RecordUsage(k.ID, shifts, employees); err != nil {
		h.Logger.Warn("record usage failed", zap.Uint("key_id", k.ID), zap.Error(err))
	}
}

func (h *Handler) recordEvent(c *gin.Context, ev *database.ScheduleEvent) {
	if k := currentKey(c); k != nil {
		ev.KeyID = k.ID
	}
	if err := h.Store.RecordEvent(ev); err != nil {
		h.Logger.Warn("record schedule event failed",
			zap.String("session_id", ev.SessionID),
			zap.String("action", ev.Action),
			zap.Error(err),
		)
	}
}

// CreateSchedule solves an availability table and opens a session for it.
func (h *Handler) CreateSchedule(c *gin.Context) {
	table, seed, err := readAvailability(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	model, err := scheduler.NewAvailabilityModel(table)
	if err != nil {
		h.fail(c, err)
		return
	}

	var rng *rand.Rand
	if seed != nil {
		rng = rand.New(rand.NewSource(*seed))
	}

	s, err := h.Sessions.Create(c.Request.Context(), c.GetString(ctxUserID), model, rng)
	if err != nil {
		h.fail(c, err)
		return
	}

	var resp models.ScheduleResponse
	if err := h.view(c, s.ID, func(s *session.Session) error {
		resp = models.NewScheduleResponse(s.ID, s.State)
		return nil
	}); err != nil {
		h.fail(c, err)
		return
	}

	h.recordUsage(c, len(model.Shifts()), len(model.Employees()))
	h.recordEvent(c, &database.ScheduleEvent{
		SessionID: s.ID,
		Action:    database.ActionSolve,
		Success:   true,
		Detail:    fmt.Sprintf("%d of %d shifts uncovered", len(resp.UncoveredShifts), len(model.Shifts())),
	})

	c.JSON(http.StatusCreated, resp)
}

// GetSchedule returns the session's current schedule.
func (h *Handler) GetSchedule(c *gin.Context) {
	var resp models.ScheduleResponse
	err := h.view(c, c.Param("id"), func(s *session.Session) error {
		resp = models.NewScheduleResponse(s.ID, s.State)
		return nil
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ExportCSV downloads the session's schedule as CSV.
func (h *Handler) ExportCSV(c *gin.Context) {
	var buf bytes.Buffer
	err := h.view(c, c.Param("id"), func(s *session.Session) error {
		return export.WriteCSV(&buf, s.State.Export())
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="schedule.csv"`)
	c.Data(http.StatusOK, csvContentType, buf.Bytes())
}

// ExportXLSX downloads the session's schedule as a spreadsheet.
func (h *Handler) ExportXLSX(c *gin.Context) {
	var buf bytes.Buffer
	id := c.Param("id")
	err := h.view(c, id, func(s *session.Session) error {
		title := "Weekly schedule " + s.CreatedAt.Format("2006-01-02")
		return export.WriteXLSX(&buf, title, s.State.Export())
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="schedule.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// SwapShift exchanges a shift between two employees. A refused swap is an
// ordinary 200 response with swapped=false.
func (h *Handler) SwapShift(c *gin.Context) {
	var req models.SwapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := c.Param("id")
	if err := h.view(c, id, func(*session.Session) error { return nil }); err != nil {
		h.fail(c, err)
		return
	}

	ok, err := h.Sessions.Swap(c.Request.Context(), id, req.EmployeeA, req.EmployeeB, req.Shift)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.recordEvent(c, &database.ScheduleEvent{
		SessionID: id,
		Action:    database.ActionSwap,
		EmployeeA: req.EmployeeA,
		EmployeeB: req.EmployeeB,
		Shift:     req.Shift,
		Success:   ok,
	})

	resp := models.SwapResponse{Swapped: ok}
	if ok {
		resp.Message = fmt.Sprintf("Swapped %s between %s and %s", req.Shift, req.EmployeeA, req.EmployeeB)
	} else {
		resp.Message = "Swap not allowed: both employees must have this shift assigned"
	}
	c.JSON(http.StatusOK, resp)
}

// ResetSchedule restores the schedule to the state it had right after
// solving.
func (h *Handler) ResetSchedule(c *gin.Context) {
	id := c.Param("id")
	if err := h.view(c, id, func(*session.Session) error { return nil }); err != nil {
		h.fail(c, err)
		return
	}
	if err := h.Sessions.Reset(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}

	h.recordEvent(c, &database.ScheduleEvent{SessionID: id, Action: database.ActionReset, Success: true})
	h.GetSchedule(c)
}

// DeleteSchedule discards a session.
func (h *Handler) DeleteSchedule(c *gin.Context) {
	id := c.Param("id")
	if err := h.view(c, id, func(*session.Session) error { return nil }); err != nil {
		h.fail(c, err)
		return
	}
	if err := h.Sessions.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}

	h.recordEvent(c, &database.ScheduleEvent{SessionID: id, Action: database.ActionDelete, Success: true})
	c.JSON(http.StatusOK, gin.H{"message": "Schedule deleted"})
}
