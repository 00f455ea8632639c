// Package alert emits the short new-order sound.
package alert

import (
	"io"
	"sync"

	"github.com/boddenberg/repartos-bfa-go/internal/domain"
	"github.com/boddenberg/repartos-bfa-go/internal/port"

	"go.uber.org/zap"
)

// bell is the ASCII BEL control character.
const bell = "\a"

// Bell rings the terminal bell on a writer. Write failures are swallowed.
type Bell struct {
	mu     sync.Mutex
	w      io.Writer
	logger *zap.Logger
}

// NewBell creates a terminal bell alerter.
func NewBell(w io.Writer, logger *zap.Logger) *Bell {
	return &Bell{w: w, logger: logger}
}

func (b *Bell) Alert(a *domain.Alert) {
	if b == nil || b.w == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := io.WriteString(b.w, bell); err != nil {
		b.logger.Debug("alert tone failed", zap.String("order_id", a.OrderID), zap.Error(err))
	}
}

// Feed marks alerts as audible so the browser plays the tone when it picks
// the alert up.
type Feed struct{}

func (Feed) Alert(a *domain.Alert) {
	if a != nil {
		a.PlaySound = true
	}
}

// Multi fans an alert out to several alerters. A panicking alerter is
// recovered so the refresh cycle never fails because of sound.
type Multi []port.Alerter

func (m Multi) Alert(a *domain.Alert) {
	for _, al := range m {
		func() {
			defer func() { _ = recover() }()
			al.Alert(a)
		}()
	}
}
