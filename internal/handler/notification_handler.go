package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/risk-alert-engine/internal/domain"
	"github.com/kursadbilgin/risk-alert-engine/internal/repository"
	"github.com/kursadbilgin/risk-alert-engine/internal/service"
)

const (
	defaultPage     = 1
	defaultPageSize = 20
	maxPageSize     = 100
)

// NotificationService is the recipient-facing query and read surface.
type NotificationService interface {
	ListForRecipient(ctx context.Context, recipientID string, params repository.ListParams) (*service.NotificationPage, error)
	MarkRead(ctx context.Context, id string, recipientID string) (*domain.Notification, error)
	MarkManyRead(ctx context.Context, ids []string, recipientID string) (int64, error)
	UnreadCount(ctx context.Context, recipientID string) (int64, error)
}

type NotificationHandler struct {
	service NotificationService
}

func NewNotificationHandler(service NotificationService) (*NotificationHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("notification service is required")
	}
	return &NotificationHandler{service: service}, nil
}

func RegisterNotificationRoutes(router fiber.Router, service NotificationService) error {
	h, err := NewNotificationHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1/notifications", RequireIdentity())
	v1.Get("/", h.ListNotifications)
	v1.Get("/unread-count", h.UnreadCount)
	v1.Post("/read", h.MarkManyRead)
	v1.Post("/:id/read", h.MarkRead)

	return nil
}

type markManyReadRequest struct {
	IDs []string `json:"ids"`
}

type notificationResponse struct {
	ID          string         `json:"id"`
	RecipientID string         `json:"recipientId"`
	SenderID    *string        `json:"senderId,omitempty"`
	Category    string         `json:"category"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	ContextKey  *string        `json:"contextKey,omitempty"`
	RuleKind    *string        `json:"ruleKind,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	IsRead      bool           `json:"isRead"`
	ReadAt      *time.Time     `json:"readAt,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

type listNotificationsResponse struct {
	Data []notificationResponse `json:"data"`
	Meta listMeta               `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

func (h *NotificationHandler) ListNotifications(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return err
	}

	page, err := h.service.ListForRecipient(requestContext(c), callerIdentity(c).UserID, params)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(listNotificationsResponse{
		Data: toNotificationResponses(page.Items),
		Meta: listMeta{
			Page:     page.Page,
			PageSize: page.Limit,
			Total:    page.Total,
		},
	})
}

func (h *NotificationHandler) UnreadCount(c *fiber.Ctx) error {
	count, err := h.service.UnreadCount(requestContext(c), callerIdentity(c).UserID)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"unreadCount": count,
	})
}

func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	notification, err := h.service.MarkRead(requestContext(c), id, callerIdentity(c).UserID)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(toNotificationResponse(notification))
}

func (h *NotificationHandler) MarkManyRead(c *fiber.Ctx) error {
	var req markManyReadRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	updated, err := h.service.MarkManyRead(requestContext(c), req.IDs, callerIdentity(c).UserID)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"updated": updated,
	})
}

func parseListParams(c *fiber.Ctx) (repository.ListParams, error) {
	params := repository.ListParams{
		Page:  c.QueryInt("page", defaultPage),
		Limit: c.QueryInt("limit", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.ListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.Limit < 1 || params.Limit > maxPageSize {
		return repository.ListParams{}, fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if raw := strings.TrimSpace(c.Query("unreadOnly")); raw != "" {
		switch strings.ToLower(raw) {
		case "true", "1":
			params.UnreadOnly = true
		case "false", "0":
		default:
			return repository.ListParams{}, fmt.Errorf("%w: unreadOnly must be a boolean", domain.ErrValidation)
		}
	}

	if rawCategory := strings.TrimSpace(c.Query("category")); rawCategory != "" {
		category, err := domain.ParseCategoryFromString(rawCategory)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Category = &category
	}

	return params, nil
}

func toNotificationResponses(notifications []domain.Notification) []notificationResponse {
	responses := make([]notificationResponse, 0, len(notifications))
	for _, notification := range notifications {
		n := notification
		responses = append(responses, toNotificationResponse(&n))
	}
	return responses
}

func toNotificationResponse(n *domain.Notification) notificationResponse {
	if n == nil {
		return notificationResponse{}
	}

	var ruleKind *string
	if n.RuleKind != nil {
		kind := n.RuleKind.String()
		ruleKind = &kind
	}

	return notificationResponse{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		SenderID:    n.SenderID,
		Category:    n.Category.String(),
		Title:       n.Title,
		Body:        n.Body,
		ContextKey:  n.ContextKey,
		RuleKind:    ruleKind,
		Metadata:    n.Metadata,
		IsRead:      n.IsRead,
		ReadAt:      n.ReadAt,
		CreatedAt:   n.CreatedAt,
	}
}
