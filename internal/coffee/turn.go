package coffee

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ErrTurnTimeout is returned by an IntentSource when no input arrived in time.
var ErrTurnTimeout = errors.New("turn timed out")

// IntentSource delivers one participant's input.
type IntentSource interface {
	// AwaitIntent blocks until who acts, the timeout passes or ctx ends.
	AwaitIntent(ctx context.Context, who Person, timeout time.Duration) (Intent, error)
}

type TurnConfig struct {
	Timeout      time.Duration
	MaxIdleTurns int
}

// RunParticipant drives one participant's turns until the session finishes,
// they leave, or they stay idle for MaxIdleTurns turns in a row. On those exits
// the participant is removed, which cancels the session when they were the
// last one. When ctx itself ends (shutdown) only the view is dropped, so the
// session survives for Restore.
func (c *Coordinator) RunParticipant(ctx context.Context, src IntentSource, who Person, cfg TurnConfig) (err error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxIdleTurns <= 0 {
		cfg.MaxIdleTurns = 5
	}

	s, _, err := c.StartOrJoin(ctx, who)
	if err != nil {
		return err
	}
	log := c.log.With(zap.Stringer("session", s.ID), zap.String("participant", who.DisplayName))
	defer func() {
		if ctx.Err() != nil {
			c.DetachView(s.ID, who.ID)
			return
		}
		if rmErr := c.RemoveParticipant(context.WithoutCancel(ctx), s.ID, who.ID); rmErr != nil && err == nil {
			err = rmErr
		}
	}()

	if err := c.OpenView(ctx, s.ID, who); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.Done(s.ID):
			cancel()
		case <-loopCtx.Done():
		}
	}()

	idle := 0
	for {
		intent, err := src.AwaitIntent(loopCtx, who, cfg.Timeout)
		switch {
		case errors.Is(err, ErrTurnTimeout):
			idle++
			if idle >= cfg.MaxIdleTurns {
				log.Info("participant idle, leaving", zap.Int("idle_turns", idle))
				return nil
			}
			continue
		case err != nil:
			if loopCtx.Err() != nil && ctx.Err() == nil {
				// Session finished under us.
				return nil
			}
			return err
		}
		idle = 0

		out, err := c.Handle(loopCtx, s.ID, who, intent)
		if err != nil {
			if errors.Is(err, ErrAlreadyCompleted) || errors.Is(err, ErrNoActiveSession) {
				return nil
			}
			log.Debug("intent rejected", zap.Error(err))
			if sendErr := c.notifier.Send(loopCtx, who, UserMessage(err)); sendErr != nil {
				log.Warn("failed to report error", zap.Error(sendErr))
			}
			continue
		}
		if out.Done {
			return nil
		}
	}
}
