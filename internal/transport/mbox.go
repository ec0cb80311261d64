package transport

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/emersion/go-mbox"

	"github.com/nhle/mailjobs/internal/model"
)

// MboxSender appends outgoing messages to a local mbox file instead of
// delivering them. Useful for development and dry runs.
type MboxSender struct {
	path string

	mu  sync.Mutex
	now func() time.Time
}

// NewMboxSender creates an MboxSender writing to path.
func NewMboxSender(path string) *MboxSender {
	return &MboxSender{path: path, now: time.Now}
}

// Name returns the provider name.
func (s *MboxSender) Name() string {
	return model.OutboundMbox
}

// Send appends raw to the mbox file with from as the envelope sender.
func (s *MboxSender) Send(
	_ context.Context,
	_ *model.Account,
	from string,
	_ []string,
	raw []byte,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating mbox directory: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening mbox %s: %w", s.path, err)
	}
	defer f.Close()

	w := mbox.NewWriter(f)
	mw, err := w.CreateMessage(from, s.now())
	if err != nil {
		return fmt.Errorf("creating mbox message: %w", err)
	}
	if _, err := bytes.NewReader(raw).WriteTo(mw); err != nil {
		return fmt.Errorf("writing mbox message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing mbox writer: %w", err)
	}

	return f.Sync()
}
