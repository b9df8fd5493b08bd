package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aniladanir/guest-inbox-webhook/internal/domain"
	"github.com/aniladanir/guest-inbox-webhook/internal/testutil"
)

func strPtr(s string) *string { return &s }

func inbound(convID, wamid, body string, sentAt time.Time) *domain.Message {
	return &domain.Message{
		ConversationID:    convID,
		ProviderMessageID: strPtr(wamid),
		Content:           body,
		Direction:         domain.DirectionInbound,
		Type:              domain.TypeText,
		Status:            domain.StatusReceived,
		SentAt:            sentAt,
	}
}

func TestInsertIsIdempotent(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	inserted, err := repo.Insert(ctx, inbound("conv-1", "wamid.1", "hi", now))
	if err != nil || !inserted {
		t.Fatalf("first Insert = %v, %v; want true, nil", inserted, err)
	}
	inserted, err = repo.Insert(ctx, inbound("conv-1", "wamid.1", "hi", now))
	if err != nil || inserted {
		t.Fatalf("second Insert = %v, %v; want false, nil", inserted, err)
	}
	if n := testutil.Count(t, db, &domain.Message{}); n != 1 {
		t.Fatalf("got %d messages, want 1", n)
	}
}

func TestMessagesWithoutProviderID(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	for range 2 {
		msg := &domain.Message{
			ConversationID: "conv-1",
			Content:        "template:conversation_expired",
			Direction:      domain.DirectionOutbound,
			Type:           domain.TypeTemplate,
			Status:         domain.StatusFailed,
			SentAt:         time.Now().UTC(),
		}
		if inserted, err := repo.Insert(ctx, msg); err != nil || !inserted {
			t.Fatalf("Insert = %v, %v; want true, nil", inserted, err)
		}
	}
	if n := testutil.Count(t, db, &domain.Message{}); n != 2 {
		t.Fatalf("got %d messages, want 2", n)
	}
}

func TestInsertInbound(t *testing.T) {
	db := testutil.OpenDB(t)
	host := testutil.CreateHost(t, db, "pn-1", "abc")
	conv := &domain.Conversation{HostID: host.ID, GuestNumber: "+15551230001"}
	if err := db.Create(conv).Error; err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	repo := NewMessageRepository(db)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for range 2 {
		if _, err := repo.InsertInbound(ctx, inbound(conv.ID, "wamid.1", "hi", at), "hi", at); err != nil {
			t.Fatalf("InsertInbound: %v", err)
		}
	}

	var got domain.Conversation
	if err := db.First(&got, "id = ?", conv.ID).Error; err != nil {
		t.Fatalf("load conversation: %v", err)
	}
	if got.UnreadCount != 1 || got.LastMessage != "hi" {
		t.Fatalf("got unread=%d last=%q, want 1 and hi", got.UnreadCount, got.LastMessage)
	}
	if n := testutil.Count(t, db, &domain.Message{}); n != 1 {
		t.Fatalf("got %d messages, want 1", n)
	}
}

func TestInsertInboundRollsBack(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := NewMessageRepository(db)
	at := time.Now().UTC()

	inserted, err := repo.InsertInbound(context.Background(), inbound("missing-conv", "wamid.1", "hi", at), "hi", at)
	if !errors.Is(err, domain.ErrConversationNotFound) || inserted {
		t.Fatalf("InsertInbound = %v, %v; want false, ErrConversationNotFound", inserted, err)
	}
	if n := testutil.Count(t, db, &domain.Message{}); n != 0 {
		t.Fatalf("got %d messages, want 0 after rollback", n)
	}
}
