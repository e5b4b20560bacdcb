package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flowkit/topicflow/errors"
	"github.com/flowkit/topicflow/types"
)

// countdown is one running timer. It owns its goroutine and removes
// itself from the scheduler when it elapses or is cancelled.
type countdown struct {
	id     string
	data   types.CountDownData
	cancel context.CancelFunc
}

// StartCountdown starts a countdown timer and returns its handle.
// With ReportProgress the remaining seconds are published every tick
// (a 3 second countdown publishes 2, 1, 0) followed by one terminal
// message; without it only the terminal message is published after the
// full duration. The timer disposes itself afterwards.
func (s *Scheduler) StartCountdown(data types.CountDownData) (string, error) {
	if data.Seconds <= 0 {
		return "", errors.WrapInvalid(
			fmt.Errorf("%w: countdown needs positive seconds, got %d", errors.ErrInvalidData, data.Seconds),
			"scheduler", "StartCountdown", "validate countdown")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return "", errors.WrapInvalid(errors.ErrNotStarted, "scheduler", "StartCountdown", "check scheduler state")
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	cd := &countdown{
		id:     uuid.NewString(),
		data:   data,
		cancel: cancel,
	}
	s.countdowns[cd.id] = cd

	go s.runCountdown(ctx, cd)
	return cd.id, nil
}

// CancelCountdown disposes a running countdown. Returns false when the
// handle is unknown, which includes countdowns that already elapsed.
func (s *Scheduler) CancelCountdown(id string) bool {
	s.mu.Lock()
	cd, ok := s.countdowns[id]
	if ok {
		delete(s.countdowns, id)
	}
	s.mu.Unlock()

	if ok {
		cd.cancel()
	}
	return ok
}

// ActiveCountdowns returns the number of running countdown timers.
func (s *Scheduler) ActiveCountdowns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.countdowns)
}

func (s *Scheduler) runCountdown(ctx context.Context, cd *countdown) {
	defer s.disposeCountdown(cd.id)

	if !cd.data.ReportProgress {
		select {
		case <-time.After(time.Duration(cd.data.Seconds) * s.countdownInterval):
			s.publishCountdownElapsed(ctx, cd)
		case <-ctx.Done():
		}
		return
	}

	ticker := time.NewTicker(s.countdownInterval)
	defer ticker.Stop()

	remaining := cd.data.Seconds
	for {
		select {
		case <-ticker.C:
			remaining--
			if remaining < 0 {
				s.publishCountdownElapsed(ctx, cd)
				return
			}
			s.publishCountdownProgress(ctx, cd, remaining)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) disposeCountdown(id string) {
	s.mu.Lock()
	delete(s.countdowns, id)
	s.mu.Unlock()
}

// publishCountdownProgress reports the remaining seconds on the
// project's count_down topic.
func (s *Scheduler) publishCountdownProgress(ctx context.Context, cd *countdown, remaining int) {
	payload := cd.data
	payload.Seconds = remaining
	encoded, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("Failed to encode countdown payload", "error", err)
		return
	}
	s.publish(ctx, cd.data.Project, types.TopicCountDown, string(encoded))
}

// publishCountdownElapsed sends the terminal message. A custom Topic on
// the countdown overrides the default elapsed leaf.
func (s *Scheduler) publishCountdownElapsed(ctx context.Context, cd *countdown) {
	payload := cd.data
	payload.Seconds = 0
	encoded, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("Failed to encode countdown payload", "error", err)
		return
	}
	leaf := cd.data.Topic
	if leaf == "" {
		leaf = types.TopicCountDownElapsed
	}
	s.publish(ctx, cd.data.Project, leaf, string(encoded))
}
