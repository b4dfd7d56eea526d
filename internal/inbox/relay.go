package inbox

import (
	"context"
	"fmt"
	"time"

	"github.com/moniquedpoliveira/licito/internal/repo"
)

// Deliver runs the fan-out described by e and marks it done. Role targets
// go to the recipients recorded with the entry, not to the role's current
// members. A failure leaves the entry pending for the next Drain.
func (s Service) Deliver(ctx context.Context, e repo.OutboxEntry) error {
	var err error
	switch e.TargetKind {
	case repo.TargetRole:
		_, err = s.NotifyUsers(ctx, e.Recipients, e.Type, e.EsclarecimentoID)
	case repo.TargetUser:
		_, err = s.NotifyUser(ctx, e.Target, e.Type, e.EsclarecimentoID)
	default:
		err = fmt.Errorf("unknown fanout target kind %q", e.TargetKind)
	}
	if err != nil {
		s.Metrics.FanoutFailed(ctx, string(e.Type))
		if markErr := s.Repo.MarkFanoutFailed(context.WithoutCancel(ctx), e.ID, err.Error()); markErr != nil {
			s.logger().ErrorContext(ctx, "record fanout failure", "outbox_id", e.ID, "error", markErr)
		}
		return err
	}
	return s.Repo.MarkFanoutDone(ctx, e.ID)
}

// Drain retries every pending fan-out once. It returns the number
// delivered; individual failures are logged and left pending.
func (s Service) Drain(ctx context.Context) (int, error) {
	pending, err := s.Repo.PendingFanouts(ctx, 100)
	if err != nil {
		return 0, err
	}
	delivered := 0
	for _, e := range pending {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		if err := s.Deliver(ctx, e); err != nil {
			s.logger().WarnContext(ctx, "fanout redelivery failed", "outbox_id", e.ID, "attempts", e.Attempts+1, "error", err)
			continue
		}
		delivered++
	}
	return delivered, nil
}

// Run drains the outbox every interval until ctx is done.
func (s Service) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.Drain(ctx); err != nil && ctx.Err() == nil {
				s.logger().ErrorContext(ctx, "drain outbox", "error", err)
			} else if n > 0 {
				s.logger().InfoContext(ctx, "outbox drained", "delivered", n)
			}
		}
	}
}
