package conversation

import (
	"context"
	"errors"
	"testing"
)

func TestInMemoryStoreCreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	conv, err := store.Create(ctx, Conversation{UserID: "u1", Title: "checkup questions"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if conv.ID == "" || conv.CreatedAt.IsZero() {
		t.Fatalf("Create() did not stamp ID/CreatedAt: %+v", conv)
	}

	got, err := store.Get(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Title != "checkup questions" || got.UserID != "u1" {
		t.Fatalf("Get() = %+v", got)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() missing error = %v, want ErrNotFound", err)
	}
}

func TestInMemoryStoreAppendPreservesOrder(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	conv, err := store.Create(ctx, Conversation{UserID: "u1"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	batch := []Message{
		{Role: "user", Content: "first", MessageType: MessageTypeVoiceTranscription},
		{Role: "assistant", Content: "second", MessageType: MessageTypeVoiceTranscription},
		{Role: "user", Content: "third", MessageType: MessageTypeVoiceTranscription},
	}
	if err := store.AppendMessages(ctx, conv.ID, batch); err != nil {
		t.Fatalf("AppendMessages() error = %v", err)
	}

	msgs, err := store.Messages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("len(msgs) = %d, want 3", len(msgs))
	}
	for i, want := range []string{"first", "second", "third"} {
		if msgs[i].Content != want {
			t.Fatalf("msgs[%d] = %q, want %q", i, msgs[i].Content, want)
		}
		if msgs[i].ID == "" || msgs[i].ConversationID != conv.ID {
			t.Fatalf("msgs[%d] missing identity fields: %+v", i, msgs[i])
		}
	}
}

func TestInMemoryStoreAppendToMissingConversation(t *testing.T) {
	store := NewInMemoryStore()
	err := store.AppendMessages(context.Background(), "missing", []Message{{Role: "user", Content: "hi"}})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("AppendMessages() error = %v, want ErrNotFound", err)
	}
}
