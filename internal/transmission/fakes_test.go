package transmission

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nhle/mailjobs/internal/model"
	"github.com/nhle/mailjobs/internal/store"
	"github.com/nhle/mailjobs/tests/testutil"
)

type sentMail struct {
	from  string
	rcpts []string
	raw   []byte
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeSender) Send(_ context.Context, _ *model.Account, from string, rcpts []string, raw []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMail{from: from, rcpts: rcpts, raw: raw})
	return f.err
}

func (f *fakeSender) Name() string { return "fake" }

type serverMessage struct {
	raw   []byte
	flags []string
}

// fakeServer is an in-memory IMAP server keyed by mailbox name and UID.
type fakeServer struct {
	mu        sync.Mutex
	boxes     map[string]map[uint32]*serverMessage
	nextUID   uint32
	appendErr error
	deleteErr error
	flagErr   error
}

func newFakeServer() *fakeServer {
	return &fakeServer{boxes: make(map[string]map[uint32]*serverMessage), nextUID: 100}
}

func (f *fakeServer) Append(_ context.Context, _ *model.Account, mailbox string, raw []byte, flags ...string) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return 0, f.appendErr
	}
	if f.boxes[mailbox] == nil {
		f.boxes[mailbox] = make(map[uint32]*serverMessage)
	}
	f.nextUID++
	f.boxes[mailbox][f.nextUID] = &serverMessage{raw: raw, flags: flags}
	return f.nextUID, nil
}

func (f *fakeServer) Delete(_ context.Context, _ *model.Account, mailbox string, uid uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.boxes[mailbox][uid]; !ok {
		return errors.New("no such message")
	}
	delete(f.boxes[mailbox], uid)
	return nil
}

func (f *fakeServer) AddFlags(_ context.Context, _ *model.Account, mailbox string, uid uint32, flags ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.flagErr != nil {
		return f.flagErr
	}
	msg, ok := f.boxes[mailbox][uid]
	if !ok {
		return errors.New("no such message")
	}
	msg.flags = append(msg.flags, flags...)
	return nil
}

// put places a message on the server directly, bypassing Append errors.
func (f *fakeServer) put(mailbox string, raw []byte, flags ...string) uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.boxes[mailbox] == nil {
		f.boxes[mailbox] = make(map[uint32]*serverMessage)
	}
	f.nextUID++
	f.boxes[mailbox][f.nextUID] = &serverMessage{raw: raw, flags: flags}
	return f.nextUID
}

func (f *fakeServer) count(mailbox string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.boxes[mailbox])
}

func (f *fakeServer) get(mailbox string, uid uint32) *serverMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.boxes[mailbox][uid]
}

type env struct {
	store    *store.SQLiteStore
	sender   *fakeSender
	server   *fakeServer
	pipeline *Pipeline
	account  *model.Account
	inbox    *model.Mailbox
	sent     *model.Mailbox
	drafts   *model.Mailbox
	now      time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	e := &env{
		store:  testutil.NewTestStore(t),
		sender: &fakeSender{},
		server: newFakeServer(),
		now:    time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC),
	}
	e.account = testutil.NewTestAccount(t, e.store, "alice")

	for _, mb := range []**model.Mailbox{&e.inbox, &e.sent, &e.drafts} {
		*mb = &model.Mailbox{AccountID: e.account.ID}
	}
	e.inbox.Name, e.inbox.SpecialUse = "INBOX", model.SpecialUseInbox
	e.sent.Name, e.sent.SpecialUse = "Sent", model.SpecialUseSent
	e.drafts.Name, e.drafts.SpecialUse = "Drafts", model.SpecialUseDrafts
	for _, mb := range []*model.Mailbox{e.inbox, e.sent, e.drafts} {
		if err := e.store.UpsertMailbox(ctx, mb); err != nil {
			t.Fatalf("UpsertMailbox: %v", err)
		}
	}

	e.account.SentMailboxID = &e.sent.ID
	e.account.DraftsMailboxID = &e.drafts.ID
	if err := e.store.UpdateAccount(ctx, e.account); err != nil {
		t.Fatalf("UpdateAccount: %v", err)
	}

	e.pipeline = New(Deps{
		Store:     e.store,
		Sender:    e.sender,
		Mailboxes: e.server,
		Hostname:  "mail.test",
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:       func() time.Time { return e.now },
	})
	return e
}

// cacheServerMessage stores msg on the fake server and in the cache.
func (e *env) cacheServerMessage(t *testing.T, mb *model.Mailbox, msg *model.Message) *model.Message {
	t.Helper()
	msg.AccountID = e.account.ID
	msg.MailboxID = mb.ID
	msg.UID = e.server.put(mb.Name, []byte("Subject: "+msg.Subject+"\r\n\r\n"), msg.Flags...)
	if msg.SentAt.IsZero() {
		msg.SentAt = e.now.Add(-time.Hour)
	}
	if err := e.store.InsertMessage(context.Background(), msg); err != nil {
		t.Fatalf("InsertMessage: %v", err)
	}
	return msg
}
