package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/nextlevelbuilder/sylph/internal/store"
)

// acceptSpam applies the per-sender spam window: a message arriving before
// the window since the previous accepted one has elapsed is rejected
// silently. Acceptance is boundary-inclusive and stamps the record.
func acceptSpam(u *store.User, windowMS, nowMS int64) bool {
	if nowMS-u.Spam < windowMS {
		return false
	}
	u.Spam = nowMS
	return true
}

// Queue is the optional FIFO fairness gate serializing non-privileged
// senders. A message records its ID on arrival and waits until the ID that
// preceded it is evicted; eviction happens in the finalize phase.
type Queue struct {
	mu  sync.Mutex
	ids []string

	// Step is the poll interval while waiting.
	Step time.Duration
}

// NewQueue creates a queue with the given poll step.
func NewQueue(step time.Duration) *Queue {
	return &Queue{Step: step}
}

// Add appends id and returns the identifier that was at the tail before it,
// the one this message must wait on. Empty means the queue was empty.
func (q *Queue) Add(id string) (prev string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n := len(q.ids); n > 0 {
		prev = q.ids[n-1]
	}
	q.ids = append(q.ids, id)
	return prev
}

// Remove evicts id, releasing whichever message is waiting on it.
func (q *Queue) Remove(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, v := range q.ids {
		if v == id {
			q.ids = append(q.ids[:i], q.ids[i+1:]...)
			return
		}
	}
}

func (q *Queue) contains(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, v := range q.ids {
		if v == id {
			return true
		}
	}
	return false
}

// Wait blocks until prev is no longer queued or ctx is done. A message with
// no predecessor returns immediately.
func (q *Queue) Wait(ctx context.Context, prev string) {
	if prev == "" || !q.contains(prev) {
		return
	}
	ticker := time.NewTicker(q.Step)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !q.contains(prev) {
				return
			}
		}
	}
}
