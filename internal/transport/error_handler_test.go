package transport

import (
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/risk-alert-engine/internal/domain"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestStatusFromError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "validation", err: fmt.Errorf("%w: bad page", domain.ErrValidation), want: fiber.StatusBadRequest},
		{name: "not authorized", err: domain.ErrNotAuthorized, want: fiber.StatusForbidden},
		{name: "not found", err: fmt.Errorf("%w: job", domain.ErrNotFound), want: fiber.StatusNotFound},
		{name: "job busy", err: domain.ErrJobBusy, want: fiber.StatusConflict},
		{name: "store unavailable", err: fmt.Errorf("read: %w", domain.ErrStoreUnavailable), want: fiber.StatusServiceUnavailable},
		{name: "fiber error", err: fiber.NewError(fiber.StatusUnauthorized, "who are you"), want: fiber.StatusUnauthorized},
		{name: "unknown", err: errors.New("boom"), want: fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := StatusFromError(tt.err); got != tt.want {
				t.Fatalf("StatusFromError() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestErrorHandlerHidesInternalErrors(t *testing.T) {
	t.Parallel()

	core, recorded := observer.New(zapcore.InfoLevel)
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.New(core))})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("pq: password authentication failed")
	})
	app.Get("/forbidden", func(c *fiber.Ctx) error {
		return fmt.Errorf("%w: not yours", domain.ErrNotAuthorized)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/boom", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	if string(body) != `{"error":"internal server error"}` {
		t.Fatalf("body = %s", body)
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/forbidden", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}

	if got := recorded.FilterMessage("request error").Len(); got != 1 {
		t.Fatalf("request error entries = %d, want 1", got)
	}
	if got := recorded.FilterMessage("request rejected").Len(); got != 1 {
		t.Fatalf("request rejected entries = %d, want 1", got)
	}
}

func TestErrorHandlerHidesStoreErrors(t *testing.T) {
	t.Parallel()

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.NewNop())})
	app.Get("/store", func(c *fiber.Ctx) error {
		return fmt.Errorf("%w: dial tcp 10.0.0.5:5432: connect: connection refused", domain.ErrStoreUnavailable)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/store", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	if string(body) != `{"error":"service temporarily unavailable"}` {
		t.Fatalf("body = %s", body)
	}
}
