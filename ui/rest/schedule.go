package rest

import (
	"context"
	"strconv"
	"time"

	pkgError "github.com/Zer0phucks/devconsul/pkg/error"
	"github.com/Zer0phucks/devconsul/pkg/utils"
	"github.com/Zer0phucks/devconsul/scheduling/application"
	"github.com/Zer0phucks/devconsul/scheduling/domain"
	"github.com/Zer0phucks/devconsul/validations"
	"github.com/gofiber/fiber/v2"
)

type Schedule struct {
	Queue   *application.QueueService
	Metrics *application.MetricsService
}

func InitRestSchedule(app fiber.Router, queue *application.QueueService, metrics *application.MetricsService) Schedule {
	handler := Schedule{Queue: queue, Metrics: metrics}

	group := app.Group("/schedules")
	group.Post("/", handler.Create)
	group.Post("/batch/cancel", handler.BatchCancel)
	group.Post("/batch/pause", handler.BatchPause)
	group.Post("/batch/resume", handler.BatchResume)
	group.Get("/:id", handler.Get)
	group.Post("/:id/cancel", handler.Cancel)
	group.Post("/:id/pause", handler.Pause)
	group.Post("/:id/resume", handler.Resume)

	projects := app.Group("/projects/:projectId")
	projects.Get("/schedules", handler.List)
	projects.Post("/dequeue", handler.Dequeue)
	projects.Get("/queue/stats", handler.QueueStats)
	projects.Get("/metrics", handler.GetMetrics)
	projects.Post("/metrics/refresh", handler.RefreshMetrics)

	return handler
}

func (h *Schedule) Create(c *fiber.Ctx) error {
	var request domain.CreateScheduleRequest
	if err := c.BodyParser(&request); err != nil {
		return scheduleError(c, pkgError.ValidationError("invalid body"))
	}
	if err := validations.ValidateCreateSchedule(c.UserContext(), request); err != nil {
		return scheduleError(c, err)
	}

	item, err := h.Queue.Enqueue(c.UserContext(), request.ContentID, request.ProjectID, request.ScheduledFor, application.EnqueueOptions{
		Timezone:          request.Timezone,
		Platforms:         request.Platforms,
		Priority:          request.Priority,
		MaxRetries:        request.MaxRetries,
		RetryDelaySeconds: request.RetryDelaySeconds,
		Recurrence:        request.Recurrence,
		RecurringUntil:    request.RecurringUntil,
	})
	if err != nil {
		return scheduleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.ResponseData{
		Status:  201,
		Code:    "CREATED",
		Message: "Content scheduled",
		Results: item,
	})
}

func (h *Schedule) Get(c *fiber.Ctx) error {
	item, err := h.Queue.GetSchedule(c.UserContext(), c.Params("id"))
	if err != nil {
		return scheduleError(c, err)
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Schedule retrieved",
		Results: item,
	})
}

func (h *Schedule) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)
	items, err := h.Queue.ListSchedules(c.UserContext(), c.Params("projectId"), limit, offset)
	if err != nil {
		return scheduleError(c, err)
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Schedules retrieved",
		Results: items,
	})
}

func (h *Schedule) Cancel(c *fiber.Ctx) error {
	return h.single(c, h.Queue.CancelSchedule, "Schedule cancelled")
}

func (h *Schedule) Pause(c *fiber.Ctx) error {
	return h.single(c, h.Queue.PauseSchedule, "Schedule paused")
}

func (h *Schedule) Resume(c *fiber.Ctx) error {
	return h.single(c, h.Queue.ResumeSchedule, "Schedule resumed")
}

func (h *Schedule) BatchCancel(c *fiber.Ctx) error {
	return h.batch(c, h.Queue.BatchCancel, "Schedules cancelled")
}

func (h *Schedule) BatchPause(c *fiber.Ctx) error {
	return h.batch(c, h.Queue.BatchPause, "Schedules paused")
}

func (h *Schedule) BatchResume(c *fiber.Ctx) error {
	return h.batch(c, h.Queue.BatchResume, "Schedules resumed")
}

func (h *Schedule) Dequeue(c *fiber.Ctx) error {
	var request domain.DequeueRequest
	if err := c.BodyParser(&request); err != nil && len(c.Body()) > 0 {
		return scheduleError(c, pkgError.ValidationError("invalid body"))
	}
	if request.Limit <= 0 {
		request.Limit = 25
	}

	items, err := h.Queue.Dequeue(c.UserContext(), c.Params("projectId"), request.Limit)
	if err != nil {
		return scheduleError(c, err)
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Claimed " + strconv.Itoa(len(items)) + " schedule(s)",
		Results: items,
	})
}

func (h *Schedule) QueueStats(c *fiber.Ctx) error {
	stats, err := h.Queue.GetQueueStats(c.UserContext(), c.Params("projectId"))
	if err != nil {
		return scheduleError(c, err)
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Queue stats computed",
		Results: stats,
	})
}

func (h *Schedule) GetMetrics(c *fiber.Ctx) error {
	at := time.Now().UTC()
	if dateStr := c.Query("date"); dateStr != "" {
		parsed, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			return scheduleError(c, pkgError.ValidationError("date must be YYYY-MM-DD"))
		}
		at = parsed
	}

	m, err := h.Metrics.GetMetrics(c.UserContext(), c.Params("projectId"), at)
	if err != nil {
		return scheduleError(c, err)
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Metrics retrieved",
		Results: m,
	})
}

func (h *Schedule) RefreshMetrics(c *fiber.Ctx) error {
	m, err := h.Metrics.UpdateQueueMetrics(c.UserContext(), c.Params("projectId"))
	if err != nil {
		return scheduleError(c, err)
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Metrics recomputed",
		Results: m,
	})
}

func (h *Schedule) single(c *fiber.Ctx, op func(ctx context.Context, id string) error, message string) error {
	if err := op(c.UserContext(), c.Params("id")); err != nil {
		return scheduleError(c, err)
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: message,
	})
}

func (h *Schedule) batch(c *fiber.Ctx, op func(ctx context.Context, ids []string) (int64, error), message string) error {
	var request domain.BatchRequest
	if err := c.BodyParser(&request); err != nil {
		return scheduleError(c, pkgError.ValidationError("invalid body"))
	}
	if err := validations.ValidateBatchRequest(c.UserContext(), request); err != nil {
		return scheduleError(c, err)
	}

	affected, err := op(c.UserContext(), request.IDs)
	if err != nil {
		return scheduleError(c, err)
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: message,
		Results: fiber.Map{"requested": len(request.IDs), "affected": affected},
	})
}

// scheduleError maps domain and validation errors onto HTTP responses.
func scheduleError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	code := "INTERNAL_SERVER_ERROR"

	switch {
	case err == domain.ErrScheduleNotFound, err == domain.ErrMetricsNotFound:
		status = fiber.StatusNotFound
		code = "NOT_FOUND"
	case err == domain.ErrInvalidTransition:
		status = fiber.StatusConflict
		code = "INVALID_TRANSITION"
	default:
		if generic, ok := err.(pkgError.GenericError); ok {
			status = generic.StatusCode()
			code = generic.ErrCode()
		}
	}

	return c.Status(status).JSON(utils.ResponseData{
		Status:  status,
		Code:    code,
		Message: err.Error(),
	})
}
