// Package scheduler owns the set of recurring per-chat poll tasks plus the
// single process-wide daily report task. Ticks for one chat never overlap;
// ticks for different chats interleave freely.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Task runs one tick. The context carries the per-tick timeout and is
// cancelled when the task is removed.
type Task func(ctx context.Context)

// dailyJobTimeout bounds one occurrence of the daily job. A wedged send
// must not stall the loop into its next occurrence.
const dailyJobTimeout = 5 * time.Minute

type Scheduler struct {
	interval    time.Duration
	firstDelay  time.Duration
	tickTimeout time.Duration
	logger      *log.Logger

	mu    sync.Mutex
	tasks map[int64]context.CancelFunc

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(interval, firstDelay time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		interval:    interval,
		firstDelay:  firstDelay,
		tickTimeout: interval,
		logger:      log.New(os.Stdout, "scheduler: ", log.LstdFlags|log.Lmsgprefix),
		tasks:       make(map[int64]context.CancelFunc),
		baseCtx:     ctx,
		cancel:      cancel,
	}
}

// Subscribe starts a recurring task for the chat, cancelling any existing
// task for the same key first. Calling it twice leaves exactly one live
// task, so re-subscribing is idempotent.
func (s *Scheduler) Subscribe(chatID int64, tick Task) {
	s.mu.Lock()
	if cancel, ok := s.tasks[chatID]; ok {
		cancel()
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	s.tasks[chatID] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx, chatID, tick)
}

// Unsubscribe cancels the chat's task. The cancellation is observed
// before the next scheduled tick; an in-flight tick may complete.
func (s *Scheduler) Unsubscribe(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cancel, ok := s.tasks[chatID]; ok {
		cancel()
		delete(s.tasks, chatID)
		s.logger.Printf("Unsubscribed chat %d", chatID)
	}
}

// Active reports whether the chat currently has a live task.
func (s *Scheduler) Active(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[chatID]
	return ok
}

// Len returns the number of live per-chat tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// run drives one chat's ticks sequentially. One goroutine per key is what
// guarantees ticks for the same chat never overlap.
func (s *Scheduler) run(ctx context.Context, chatID int64, tick Task) {
	defer s.wg.Done()

	first := time.NewTimer(s.firstDelay)
	defer first.Stop()

	select {
	case <-ctx.Done():
		return
	case <-first.C:
	}

	s.tick(ctx, tick)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, tick)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, tick Task) {
	// The ticker may fire in the same instant the task is cancelled.
	if ctx.Err() != nil {
		return
	}

	tickCtx, cancel := context.WithTimeout(ctx, s.tickTimeout)
	defer cancel()
	tick(tickCtx)
}

// StartDaily runs job once per day at the given wall-clock time ("HH:MM").
// The job runs exactly once per occurrence regardless of how many chats it
// iterates over.
func (s *Scheduler) StartDaily(at string, job Task) error {
	hour, minute, err := parseTimeOfDay(at)
	if err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		for {
			wait := time.Until(nextOccurrence(time.Now(), hour, minute))
			timer := time.NewTimer(wait)

			select {
			case <-s.baseCtx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}

			s.logger.Printf("Running daily report job")
			s.runDaily(job)
		}
	}()

	return nil
}

func (s *Scheduler) runDaily(job Task) {
	ctx, cancel := context.WithTimeout(s.baseCtx, dailyJobTimeout)
	defer cancel()
	job(ctx)
}

// Shutdown cancels every task and waits for in-flight ticks to finish.
func (s *Scheduler) Shutdown() {
	s.cancel()
	s.wg.Wait()
}

func parseTimeOfDay(at string) (hour, minute int, err error) {
	parts := strings.SplitN(at, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time of day %q (want HH:MM)", at)
	}

	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", at)
	}

	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", at)
	}

	return hour, minute, nil
}

// nextOccurrence returns the next time the clock reads hour:minute,
// strictly after now.
func nextOccurrence(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
