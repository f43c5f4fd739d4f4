package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kursadbilgin/risk-alert-engine/internal/domain"
	"github.com/kursadbilgin/risk-alert-engine/internal/repository"
)

const (
	notificationA = "0f8fad5b-d9cb-469f-a165-70867728950e"
	notificationB = "7c9e6679-7425-40de-944b-e07fc1f90ae7"
)

func unreadAlert(id string, recipientID string, createdAt time.Time) domain.Notification {
	key := domain.ContextKey(domain.RuleAttendance, "s1", "sub-Physics")
	kind := domain.RuleAttendance
	return domain.Notification{
		ID:          id,
		RecipientID: recipientID,
		Category:    domain.CategoryAuto,
		Title:       titleLowAttendance,
		Body:        "Attendance in Physics is 60.0% (below 75%)",
		ContextKey:  &key,
		RuleKind:    &kind,
		CreatedAt:   createdAt,
	}
}

func TestMarkReadIsOneWayAndIdempotent(t *testing.T) {
	t.Parallel()

	repo := newMemoryNotificationRepo(unreadAlert(notificationA, "user-1", time.Now().Add(-time.Hour)))
	svc, err := NewLifecycleService(repo, 0, nil)
	if err != nil {
		t.Fatalf("NewLifecycleService() error = %v", err)
	}
	readAt := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return readAt }

	first, err := svc.MarkRead(context.Background(), notificationA, "user-1")
	if err != nil {
		t.Fatalf("first MarkRead() error = %v", err)
	}
	if !first.IsRead {
		t.Fatal("IsRead should be true after MarkRead")
	}
	if first.ReadAt == nil || !first.ReadAt.Equal(readAt) {
		t.Fatalf("ReadAt = %v, want %v", first.ReadAt, readAt)
	}

	svc.now = func() time.Time { return readAt.Add(time.Hour) }
	second, err := svc.MarkRead(context.Background(), notificationA, "user-1")
	if err != nil {
		t.Fatalf("second MarkRead() error = %v", err)
	}
	if !second.IsRead {
		t.Fatal("IsRead should remain true")
	}

	stored, _ := repo.get(notificationA)
	if !stored.IsRead || stored.ReadAt == nil || !stored.ReadAt.Equal(readAt) {
		t.Fatalf("stored row = %+v, want first read time kept", stored)
	}
}

func TestMarkReadCrossRecipientIsolation(t *testing.T) {
	t.Parallel()

	repo := newMemoryNotificationRepo(unreadAlert(notificationA, "user-1", time.Now()))
	svc, _ := NewLifecycleService(repo, 0, nil)

	_, err := svc.MarkRead(context.Background(), notificationA, "user-2")
	if !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("error = %v, want ErrNotAuthorized", err)
	}

	stored, _ := repo.get(notificationA)
	if stored.IsRead {
		t.Fatal("foreign MarkRead must leave the row unread")
	}
}

func TestMarkReadValidation(t *testing.T) {
	t.Parallel()

	svc, _ := NewLifecycleService(newMemoryNotificationRepo(), 0, nil)

	tests := []struct {
		name        string
		id          string
		recipientID string
		wantErr     error
	}{
		{name: "malformed id", id: "42", recipientID: "user-1", wantErr: domain.ErrValidation},
		{name: "missing caller", id: notificationA, recipientID: " ", wantErr: domain.ErrValidation},
		{name: "unknown id", id: notificationB, recipientID: "user-1", wantErr: domain.ErrNotFound},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := svc.MarkRead(context.Background(), tt.id, tt.recipientID)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("MarkRead() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMarkManyRead(t *testing.T) {
	t.Parallel()

	var gotIDs []string
	repo := &fakeNotificationRepo{
		markManyReadFn: func(ctx context.Context, ids []string, recipientID string, readAt time.Time) (int64, error) {
			gotIDs = ids
			if recipientID != "user-1" {
				t.Fatalf("recipientID = %s, want user-1", recipientID)
			}
			return 1, nil
		},
	}
	svc, _ := NewLifecycleService(repo, 0, nil)

	updated, err := svc.MarkManyRead(context.Background(), []string{notificationA, notificationB, notificationA}, "user-1")
	if err != nil {
		t.Fatalf("MarkManyRead() error = %v", err)
	}
	if updated != 1 {
		t.Fatalf("updated = %d, want 1", updated)
	}
	if len(gotIDs) != 2 {
		t.Fatalf("ids passed = %v, want duplicates removed", gotIDs)
	}

	if _, err := svc.MarkManyRead(context.Background(), nil, "user-1"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("empty ids error = %v, want ErrValidation", err)
	}
	if _, err := svc.MarkManyRead(context.Background(), []string{"nope"}, "user-1"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("bad id error = %v, want ErrValidation", err)
	}
}

func TestMarkManyReadIgnoresForeignIDs(t *testing.T) {
	t.Parallel()

	repo := newMemoryNotificationRepo(
		unreadAlert(notificationA, "user-1", time.Now()),
		unreadAlert(notificationB, "user-2", time.Now()),
	)
	svc, _ := NewLifecycleService(repo, 0, nil)

	updated, err := svc.MarkManyRead(context.Background(), []string{notificationA, notificationB}, "user-1")
	if err != nil {
		t.Fatalf("MarkManyRead() error = %v", err)
	}
	if updated != 1 {
		t.Fatalf("updated = %d, want 1", updated)
	}
	if foreign, _ := repo.get(notificationB); foreign.IsRead {
		t.Fatal("foreign notification must stay unread")
	}
}

func TestListForRecipientDefaultsAndValidation(t *testing.T) {
	t.Parallel()

	repo := &fakeNotificationRepo{
		listForRecipientFn: func(ctx context.Context, recipientID string, params repository.ListParams) ([]domain.Notification, int64, error) {
			if params.Page != 1 || params.Limit != defaultPageLimit {
				t.Fatalf("params = %+v, want page=1 limit=%d", params, defaultPageLimit)
			}
			if !params.UnreadOnly {
				t.Fatal("UnreadOnly should be forwarded")
			}
			return []domain.Notification{{ID: notificationA}}, 1, nil
		},
	}
	svc, _ := NewLifecycleService(repo, 0, nil)

	page, err := svc.ListForRecipient(context.Background(), "user-1", repository.ListParams{UnreadOnly: true})
	if err != nil {
		t.Fatalf("ListForRecipient() error = %v", err)
	}
	if page.Total != 1 || len(page.Items) != 1 || page.Page != 1 {
		t.Fatalf("page = %+v", page)
	}

	invalid := domain.Category("urgent")
	tests := []repository.ListParams{
		{Page: -1},
		{Limit: maxPageLimit + 1},
		{Category: &invalid},
	}
	for _, params := range tests {
		if _, err := svc.ListForRecipient(context.Background(), "user-1", params); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("ListForRecipient(%+v) error = %v, want ErrValidation", params, err)
		}
	}

	_, err = svc.ListForRecipient(context.Background(), "user-1", repository.ListParams{Page: -1})
	if err == nil || !strings.Contains(err.Error(), "page must not be negative") {
		t.Fatalf("ListForRecipient(page=-1) error = %v, want page must not be negative", err)
	}
}

func TestUnreadCount(t *testing.T) {
	t.Parallel()

	repo := newMemoryNotificationRepo(
		unreadAlert(notificationA, "user-1", time.Now()),
		unreadAlert(notificationB, "user-2", time.Now()),
	)
	svc, _ := NewLifecycleService(repo, 0, nil)

	count, err := svc.UnreadCount(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("UnreadCount() error = %v", err)
	}
	if count != 1 {
		t.Fatalf("UnreadCount() = %d, want 1", count)
	}
}

func TestDeliveryStats(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	repo := &fakeNotificationRepo{
		categoryStatsFn: func(ctx context.Context, since time.Time) ([]repository.CategoryStat, error) {
			if want := now.AddDate(0, 0, -7); !since.Equal(want) {
				t.Fatalf("since = %v, want %v", since, want)
			}
			return []repository.CategoryStat{
				{Category: domain.CategoryAuto, IsRead: false, Count: 5},
				{Category: domain.CategoryAuto, IsRead: true, Count: 3},
				{Category: domain.CategorySystem, IsRead: true, Count: 1},
			}, nil
		},
	}
	svc, _ := NewLifecycleService(repo, 7, nil)
	svc.now = func() time.Time { return now }

	stats, err := svc.DeliveryStats(context.Background(), 0)
	if err != nil {
		t.Fatalf("DeliveryStats() error = %v", err)
	}
	if stats.Total != 9 || stats.Read != 4 || stats.Unread != 5 {
		t.Fatalf("totals = %d/%d/%d, want 9/4/5", stats.Total, stats.Read, stats.Unread)
	}
	auto := stats.ByCategory[domain.CategoryAuto]
	if auto.Read != 3 || auto.Unread != 5 || auto.Total != 8 {
		t.Fatalf("auto counts = %+v", auto)
	}

	if _, err := svc.DeliveryStats(context.Background(), 400); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

func TestAnnounce(t *testing.T) {
	t.Parallel()

	repo := newMemoryNotificationRepo()
	svc, _ := NewLifecycleService(repo, 0, nil)
	svc.newID = func() string { return notificationA }

	sender := "admin-1"
	created, err := svc.Announce(context.Background(), domain.Notification{
		RecipientID: "user-1",
		SenderID:    &sender,
		Category:    domain.CategorySystem,
		Title:       "Maintenance",
		Body:        "The portal is offline on Sunday.",
		IsRead:      true,
	})
	if err != nil {
		t.Fatalf("Announce() error = %v", err)
	}
	if created.ID != notificationA || created.IsRead || created.CreatedAt.IsZero() {
		t.Fatalf("created = %+v", created)
	}
	if _, ok := repo.get(notificationA); !ok {
		t.Fatal("announcement should be stored")
	}

	_, err = svc.Announce(context.Background(), domain.Notification{
		RecipientID: "user-1",
		Category:    domain.CategoryAuto,
		Title:       "Fake alert",
		Body:        "body",
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("auto category error = %v, want ErrValidation", err)
	}
}

func TestPurge(t *testing.T) {
	t.Parallel()

	repo := newMemoryNotificationRepo(unreadAlert(notificationA, "user-1", time.Now()))
	svc, _ := NewLifecycleService(repo, 0, nil)

	if err := svc.Purge(context.Background(), notificationA); err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if err := svc.Purge(context.Background(), notificationA); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second Purge() error = %v, want ErrNotFound", err)
	}
	if err := svc.Purge(context.Background(), "abc"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Purge(bad id) error = %v, want ErrValidation", err)
	}
}
