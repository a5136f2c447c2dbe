package services

import (
	"context"
	"time"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
	"huddle/pkg/circuitbreaker"
	"huddle/pkg/retry"

	"go.uber.org/zap"
)

// TimingService turns the 0→1 and 1→0 active-count transitions into
// canonical start/end events and records them durably. The transitions
// themselves are detected by RoomService under the session lock; this
// service is only ever called once per transition.
type TimingService struct {
	timeline ports.TimelineRepository
	retry    retry.Config
	breaker  *circuitbreaker.CircuitBreaker
	logger   *zap.SugaredLogger
}

func NewTimingService(timeline ports.TimelineRepository, retryCfg retry.Config, logger *zap.SugaredLogger) *TimingService {
	breaker := circuitbreaker.New(circuitbreaker.DefaultConfig())
	breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warnw("timeline store circuit state changed", "from", from.String(), "to", to.String())
	})

	return &TimingService{
		timeline: timeline,
		retry:    retryCfg,
		breaker:  breaker,
		logger:   logger,
	}
}

// SessionStarted records the canonical session start. Persistence is
// best-effort: a store failure is logged and the event still fires. The
// breaker keeps a dead store from stalling every session transition once
// the retries start failing consistently.
func (t *TimingService) SessionStarted(ctx context.Context, session domain.SessionID, at time.Time) *domain.StartEvent {
	err := t.breaker.Execute(ctx, func() error {
		return retry.Retry(ctx, t.retry, func() error {
			return t.timeline.RecordStart(ctx, session, at)
		})
	})
	if err != nil {
		t.logger.Errorw("failed to record session start", "session", session, "error", err)
	}

	t.logger.Infow("session started", "session", session, "started_at", at)
	return &domain.StartEvent{SessionID: session, StartedAt: at}
}

// SessionEnded records the canonical session end and the duration since the
// most recent start.
func (t *TimingService) SessionEnded(ctx context.Context, session domain.SessionID, startedAt, at time.Time) *domain.EndEvent {
	duration := at.Sub(startedAt)

	err := t.breaker.Execute(ctx, func() error {
		return retry.Retry(ctx, t.retry, func() error {
			return t.timeline.RecordEnd(ctx, session, at, duration)
		})
	})
	if err != nil {
		t.logger.Errorw("failed to record session end", "session", session, "error", err)
	}

	t.logger.Infow("session ended", "session", session, "ended_at", at, "duration_ms", duration.Milliseconds())
	return &domain.EndEvent{
		SessionID: session,
		StartedAt: startedAt,
		EndedAt:   at,
		Duration:  duration,
	}
}
