package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/opsdeskhq/opsdesk/internal/auth/store"
)

const DefaultHousekeepingInterval = 5 * time.Minute

// Housekeeper periodically removes expired TOTP setup state. Pending
// setups and setup tokens carry their own expiry and are rejected when
// stale, so the sweep only reclaims storage.
type Housekeeper struct {
	Store    store.Store
	Interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// Start launches the background sweep loop. It returns immediately.
func (h *Housekeeper) Start() {
	interval := h.Interval
	if interval <= 0 {
		interval = DefaultHousekeepingInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan struct{})

	go func() {
		defer close(h.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.sweep(ctx)
			}
		}
	}()
}

// Stop terminates the sweep loop and waits for it to exit.
func (h *Housekeeper) Stop() {
	if h.cancel == nil {
		return
	}
	h.cancel()
	<-h.done
}

func (h *Housekeeper) sweep(ctx context.Context) {
	if err := h.Store.PendingSetups().DeleteExpired(ctx); err != nil {
		slog.Error("housekeeping: purge pending setups", "error", err)
	}
	if err := h.Store.SetupTokens().DeleteExpired(ctx); err != nil {
		slog.Error("housekeeping: purge setup tokens", "error", err)
	}
}
