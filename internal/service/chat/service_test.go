package chat_test

import (
	"context"
	"errors"
	"testing"

	"github.com/zhouzirui/date-rehearsal/backend/internal/model/avatar"
	modelchat "github.com/zhouzirui/date-rehearsal/backend/internal/model/chat"
	chat "github.com/zhouzirui/date-rehearsal/backend/internal/service/chat"
)

func newService() *chat.Service {
	return chat.NewService(avatar.NewMemoryStore(avatar.Seed()))
}

func TestServiceGetConversation(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	conversation, err := svc.CreateConversation(ctx, "sam", modelchat.ModeVoice)
	if err != nil {
		t.Fatalf("CreateConversation err: %v", err)
	}

	got, err := svc.GetConversation(ctx, conversation.ID())
	if err != nil {
		t.Fatalf("GetConversation err: %v", err)
	}

	snapshot := got.Snapshot()
	if snapshot.AvatarID != "sam" || snapshot.Mode != modelchat.ModeVoice {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
	if snapshot.Phase != modelchat.PhaseActive || snapshot.CurrentEmotion != "neutral" {
		t.Fatalf("unexpected initial state: %+v", snapshot)
	}
}

func TestServiceDefaultAvatar(t *testing.T) {
	conversation, err := newService().CreateConversation(context.Background(), "", modelchat.ModeText)
	if err != nil {
		t.Fatalf("CreateConversation err: %v", err)
	}
	if conversation.Snapshot().AvatarID != avatar.DefaultID {
		t.Fatalf("expected default avatar, got %s", conversation.Snapshot().AvatarID)
	}
}

func TestServiceUnknownAvatar(t *testing.T) {
	_, err := newService().CreateConversation(context.Background(), "nobody", modelchat.ModeText)
	if !errors.Is(err, chat.ErrAvatarNotFound) {
		t.Fatalf("expected ErrAvatarNotFound, got %v", err)
	}
}

func TestServiceGetConversationNotFound(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	if _, err := svc.GetConversation(ctx, "missing"); !errors.Is(err, chat.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	conversation, _ := svc.CreateConversation(ctx, "", modelchat.ModeText)
	svc.Delete(ctx, conversation.ID())
	if _, err := svc.GetConversation(ctx, conversation.ID()); !errors.Is(err, chat.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
	}
}
