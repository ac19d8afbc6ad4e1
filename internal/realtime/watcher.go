package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"pulsethread/internal/domain"
)

// Fetch reads the current state of whatever is being watched.
type Fetch func(ctx context.Context) (any, error)

// Push delivers one JSON snapshot to the viewer.
type Push func(snapshot []byte) error

// Watch pushes a fresh snapshot whenever sub signals a change, and polls every interval as
// a fallback. Notifications are only a hint: every push is re-read through fetch, and a
// snapshot identical to the last one pushed is skipped. When sub is closed, Watch keeps
// polling. It returns when ctx ends or fetch or push fails.
func Watch(ctx context.Context, sub *Subscription, interval time.Duration, fetch Fetch, push Push) error {
	var last []byte
	refresh := func() error {
		v, err := fetch(ctx)
		if err != nil {
			return err
		}
		snapshot, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if bytes.Equal(snapshot, last) {
			return nil
		}
		last = snapshot
		return push(snapshot)
	}

	if err := refresh(); err != nil {
		return err
	}

	var events <-chan domain.ChangeEvent
	if sub != nil {
		events = sub.C
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-events:
			if !ok {
				// feed lost, polling only from here
				events = nil
				continue
			}
			if err := refresh(); err != nil {
				return err
			}
		case <-ticker.C:
			if err := refresh(); err != nil {
				return err
			}
		}
	}
}
