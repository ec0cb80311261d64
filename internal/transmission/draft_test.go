package transmission

import (
	"context"
	"errors"
	"testing"

	"github.com/nhle/mailjobs/internal/model"
	"github.com/nhle/mailjobs/internal/store"
)

func draftData(e *env, subject string) model.NewMessageData {
	return model.NewMessageData{
		Account: e.account,
		To:      []model.Recipient{{Type: model.RecipientTypeTo, Email: "bob@example.com"}},
		Subject: subject,
		Body:    "draft body",
		Attachments: []model.Attachment{
			{Filename: "notes.txt", ContentType: "text/plain", Content: []byte("n")},
		},
	}
}

func TestSaveDraft_NoDraftsMailbox(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.account.DraftsMailboxID = nil

	_, err := e.pipeline.SaveDraft(context.Background(), draftData(e, "x"), nil)

	if !IsClientError(err) {
		t.Fatalf("got %v, want client error", err)
	}
	if e.server.count("Drafts") != 0 {
		t.Error("no storage write expected")
	}
}

func TestSaveDraft_NoAccount(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	data := draftData(e, "x")
	data.Account = nil

	if _, err := e.pipeline.SaveDraft(context.Background(), data, nil); !IsClientError(err) {
		t.Fatalf("got %v, want client error", err)
	}
}

func TestSaveDraft_ReplacesPrevious(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)

	first, err := e.pipeline.SaveDraft(ctx, draftData(e, "v1"), nil)
	if err != nil {
		t.Fatalf("SaveDraft v1: %v", err)
	}
	previous, err := e.store.GetMessage(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}

	second, err := e.pipeline.SaveDraft(ctx, draftData(e, "v2"), previous)
	if err != nil {
		t.Fatalf("SaveDraft v2: %v", err)
	}

	if e.server.count("Drafts") != 1 {
		t.Fatalf("Drafts mailbox: got %d messages, want 1", e.server.count("Drafts"))
	}
	if e.server.get("Drafts", second.UID) == nil {
		t.Error("new draft missing from Drafts mailbox")
	}
	if second.Mailbox.ID != e.drafts.ID || second.MessageID == "" {
		t.Errorf("saved draft location: %+v", second)
	}
	if _, err := e.store.GetMessage(ctx, previous.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("previous draft in cache: got %v, want ErrNotFound", err)
	}

	cached, err := e.store.GetMessage(ctx, second.ID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if cached.Subject != "v2" || !cached.HasFlag(model.FlagDraft) {
		t.Errorf("cached draft: %+v", cached)
	}
}

func TestSaveDraft_DeleteFailureKeepsBoth(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)

	first, err := e.pipeline.SaveDraft(ctx, draftData(e, "v1"), nil)
	if err != nil {
		t.Fatalf("SaveDraft v1: %v", err)
	}
	previous, err := e.store.GetMessage(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}

	e.server.deleteErr = errors.New("connection lost")
	if _, err := e.pipeline.SaveDraft(ctx, draftData(e, "v2"), previous); err != nil {
		t.Fatalf("SaveDraft v2: %v", err)
	}

	if e.server.count("Drafts") != 2 {
		t.Errorf("Drafts mailbox: got %d messages, want both drafts", e.server.count("Drafts"))
	}
	if _, err := e.store.GetMessage(ctx, previous.ID); err != nil {
		t.Errorf("previous draft should remain cached: %v", err)
	}
}

func TestSaveDraft_WriteFailureKeepsPrevious(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)

	first, err := e.pipeline.SaveDraft(ctx, draftData(e, "v1"), nil)
	if err != nil {
		t.Fatalf("SaveDraft v1: %v", err)
	}
	previous, err := e.store.GetMessage(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}

	e.server.appendErr = errors.New("mailbox locked")
	_, err = e.pipeline.SaveDraft(ctx, draftData(e, "v2"), previous)

	if !IsServiceError(err) {
		t.Fatalf("got %v, want service error", err)
	}
	if e.server.count("Drafts") != 1 || e.server.get("Drafts", previous.UID) == nil {
		t.Error("previous draft must survive a failed write")
	}
}

func TestSaveDraft_MalformedRecipient(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	data := draftData(e, "x")
	data.Cc = []model.Recipient{{Type: model.RecipientTypeCc, Email: "nope"}}

	if _, err := e.pipeline.SaveDraft(context.Background(), data, nil); !IsClientError(err) {
		t.Fatalf("got %v, want client error", err)
	}
	if e.server.count("Drafts") != 0 {
		t.Error("no storage write expected")
	}
}
