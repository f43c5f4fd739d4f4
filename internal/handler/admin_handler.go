package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/risk-alert-engine/internal/domain"
	"github.com/kursadbilgin/risk-alert-engine/internal/service"
)

type AlertTrigger interface {
	TriggerLowAttendanceAlerts(ctx context.Context, threshold *float64) (service.RunSummary, error)
	TriggerAtRiskAlerts(ctx context.Context, academicYear *int) (service.RunSummary, error)
}

type RetentionSweeper interface {
	Cleanup(ctx context.Context, maxAgeDays int) (int64, error)
}

type NotificationAdmin interface {
	DeliveryStats(ctx context.Context, windowDays int) (*service.DeliveryStats, error)
	Announce(ctx context.Context, notification domain.Notification) (*domain.Notification, error)
	Purge(ctx context.Context, id string) error
}

type JobScheduler interface {
	Status() service.SchedulerStatus
	Start(name string) error
	Stop(name string) error
	Destroy(name string) error
	RunNow(ctx context.Context, name string) (service.RunSummary, error)
	RunWith(ctx context.Context, name string, run service.JobFunc) (service.RunSummary, error)
}

type AdminHandler struct {
	alerts        AlertTrigger
	sweeper       RetentionSweeper
	notifications NotificationAdmin
	scheduler     JobScheduler
}

func NewAdminHandler(
	alerts AlertTrigger,
	sweeper RetentionSweeper,
	notifications NotificationAdmin,
	scheduler JobScheduler,
) (*AdminHandler, error) {
	if alerts == nil || sweeper == nil || notifications == nil || scheduler == nil {
		return nil, fmt.Errorf("alert trigger, sweeper, notification admin and scheduler are required")
	}
	return &AdminHandler{
		alerts:        alerts,
		sweeper:       sweeper,
		notifications: notifications,
		scheduler:     scheduler,
	}, nil
}

func RegisterAdminRoutes(
	router fiber.Router,
	alerts AlertTrigger,
	sweeper RetentionSweeper,
	notifications NotificationAdmin,
	scheduler JobScheduler,
) error {
	h, err := NewAdminHandler(alerts, sweeper, notifications, scheduler)
	if err != nil {
		return err
	}

	admin := router.Group("/v1/admin", RequireIdentity(), RequireRole(RoleAdmin))
	admin.Post("/alerts/low-attendance", h.TriggerLowAttendance)
	admin.Post("/alerts/at-risk", h.TriggerAtRisk)
	admin.Post("/notifications/cleanup", h.Cleanup)
	admin.Get("/notifications/stats", h.DeliveryStats)
	admin.Post("/notifications", h.Announce)
	admin.Delete("/notifications/:id", h.Purge)
	admin.Get("/scheduler", h.SchedulerStatus)
	admin.Post("/scheduler/:job/start", h.StartJob)
	admin.Post("/scheduler/:job/stop", h.StopJob)
	admin.Post("/scheduler/:job/run", h.RunJob)
	admin.Delete("/scheduler/:job", h.DestroyJob)

	return nil
}

type lowAttendanceRequest struct {
	Threshold *float64 `json:"threshold"`
}

type atRiskRequest struct {
	AcademicYear *int `json:"academicYear"`
}

type cleanupRequest struct {
	MaxAgeDays int `json:"maxAgeDays"`
}

type announceRequest struct {
	RecipientID string         `json:"recipientId"`
	Category    string         `json:"category"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	Metadata    map[string]any `json:"metadata"`
}

type runSummaryResponse struct {
	AlertsSent  int      `json:"alertsSent"`
	Skipped     int      `json:"skipped"`
	Errors      int      `json:"errorsCount"`
	Deleted     int64    `json:"deleted,omitempty"`
	FailedKinds []string `json:"failedKinds,omitempty"`
	DurationMs  int64    `json:"durationMs"`
}

// Triggers run under the matching job so they never overlap a scheduled run.
// They answer 200 with the summary even when some alerts failed.
func (h *AdminHandler) TriggerLowAttendance(c *fiber.Ctx) error {
	var req lowAttendanceRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return err
	}

	summary, err := h.scheduler.RunWith(requestContext(c), service.JobLowAttendanceSweep,
		func(ctx context.Context) (service.RunSummary, error) {
			return h.alerts.TriggerLowAttendanceAlerts(ctx, req.Threshold)
		})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(toRunSummaryResponse(summary))
}

func (h *AdminHandler) TriggerAtRisk(c *fiber.Ctx) error {
	var req atRiskRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return err
	}

	summary, err := h.scheduler.RunWith(requestContext(c), service.JobAtRiskSweep,
		func(ctx context.Context) (service.RunSummary, error) {
			return h.alerts.TriggerAtRiskAlerts(ctx, req.AcademicYear)
		})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(toRunSummaryResponse(summary))
}

func (h *AdminHandler) Cleanup(c *fiber.Ctx) error {
	var req cleanupRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return err
	}

	summary, err := h.scheduler.RunWith(requestContext(c), service.JobRetentionCleanup,
		func(ctx context.Context) (service.RunSummary, error) {
			deleted, err := h.sweeper.Cleanup(ctx, req.MaxAgeDays)
			return service.RunSummary{Deleted: deleted}, err
		})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"deletedCount": summary.Deleted,
	})
}

func (h *AdminHandler) DeliveryStats(c *fiber.Ctx) error {
	windowDays := c.QueryInt("windowDays", 0)
	stats, err := h.notifications.DeliveryStats(requestContext(c), windowDays)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(stats)
}

func (h *AdminHandler) Announce(c *fiber.Ctx) error {
	var req announceRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	category, err := domain.ParseCategoryFromString(req.Category)
	if err != nil {
		return err
	}

	sender := callerIdentity(c).UserID
	created, err := h.notifications.Announce(requestContext(c), domain.Notification{
		RecipientID: strings.TrimSpace(req.RecipientID),
		SenderID:    &sender,
		Category:    category,
		Title:       strings.TrimSpace(req.Title),
		Body:        strings.TrimSpace(req.Body),
		Metadata:    req.Metadata,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(toNotificationResponse(created))
}

func (h *AdminHandler) Purge(c *fiber.Ctx) error {
	if err := h.notifications.Purge(requestContext(c), strings.TrimSpace(c.Params("id"))); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AdminHandler) SchedulerStatus(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(h.scheduler.Status())
}

func (h *AdminHandler) StartJob(c *fiber.Ctx) error {
	name := c.Params("job")
	if err := h.scheduler.Start(name); err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"job": name, "scheduled": true})
}

func (h *AdminHandler) StopJob(c *fiber.Ctx) error {
	name := c.Params("job")
	if err := h.scheduler.Stop(name); err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"job": name, "scheduled": false})
}

func (h *AdminHandler) RunJob(c *fiber.Ctx) error {
	summary, err := h.scheduler.RunNow(requestContext(c), c.Params("job"))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(toRunSummaryResponse(summary))
}

func (h *AdminHandler) DestroyJob(c *fiber.Ctx) error {
	if err := h.scheduler.Destroy(c.Params("job")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// parseOptionalBody decodes a JSON body when one was sent.
func parseOptionalBody(c *fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return nil
}

func toRunSummaryResponse(summary service.RunSummary) runSummaryResponse {
	var failed []string
	for _, kind := range summary.FailedKinds {
		failed = append(failed, kind.String())
	}

	return runSummaryResponse{
		AlertsSent:  summary.AlertsSent,
		Skipped:     summary.Skipped,
		Errors:      summary.Errors,
		Deleted:     summary.Deleted,
		FailedKinds: failed,
		DurationMs:  summary.Duration.Milliseconds(),
	}
}
