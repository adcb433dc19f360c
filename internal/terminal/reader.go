package terminal

import (
	"context"
	"time"

	"termbroker/internal/logging"
)

const (
	readTimeout   = 100 * time.Millisecond
	flushInterval = 5 * time.Second
	pollPacing    = 10 * time.Millisecond
)

// RunBackgroundReader drains s's PTY into its history until stopCh closes
// or the child exits, flushing the replay buffer to persistence on the
// configured interval and once more on exit. It runs regardless of whether
// any client is currently attached, so output keeps accumulating for
// clients that reconnect later.
func RunBackgroundReader(ctx context.Context, s *Session, stopCh <-chan struct{}) {
	lastFlush := time.Now()
	for {
		select {
		case <-stopCh:
			flushSession(ctx, s)
			return
		default:
		}

		dev := s.Device()
		if dev == nil || !dev.IsAlive() {
			flushSession(ctx, s)
			return
		}

		if out := dev.Read(readTimeout); len(out) > 0 {
			s.Append(out)
		}

		if time.Since(lastFlush) >= flushInterval {
			flushSession(ctx, s)
			lastFlush = time.Now()
		}

		time.Sleep(pollPacing)
	}
}

func flushSession(ctx context.Context, s *Session) {
	if err := s.store.UpdateBuffer(ctx, s.ID, string(s.ReplayBuffer())); err != nil {
		logging.S().Warnw("background reader flush failed", "session_id", s.ID, "err", err)
	}
}
