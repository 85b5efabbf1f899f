// Package events fans job status snapshots out to per-job subscribers.
package events

import (
	"sync"

	"github.com/JakeFAU/kgr-crawler/internal/keyword"
	"github.com/JakeFAU/kgr-crawler/internal/metrics"
)

// DefaultBuffer is the number of pending snapshots a subscriber may hold.
const DefaultBuffer = 16

// Subscription receives the status stream of one job.
type Subscription struct {
	jobID string
	ch    chan keyword.JobStatus
	done  chan struct{}
	once  sync.Once
}

// JobID returns the subscribed job.
func (s *Subscription) JobID() string {
	return s.jobID
}

// Events yields snapshots. The channel is never closed; select on Done.
func (s *Subscription) Events() <-chan keyword.JobStatus {
	return s.ch
}

// Done is closed once the subscription is released.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// offer enqueues st, evicting the oldest pending snapshot when full.
func (s *Subscription) offer(st keyword.JobStatus) {
	for {
		select {
		case s.ch <- st:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// Broker tracks the latest snapshot per job and pushes transitions to subscribers.
// Publish never blocks on a slow subscriber.
type Broker struct {
	mu     sync.Mutex
	buffer int
	latest map[string]keyword.JobStatus
	subs   map[string]map[*Subscription]struct{}
}

// NewBroker returns a Broker whose subscribers buffer up to buffer snapshots.
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broker{
		buffer: buffer,
		latest: make(map[string]keyword.JobStatus),
		subs:   make(map[string]map[*Subscription]struct{}),
	}
}

// Publish records st as the latest snapshot and delivers it to every subscriber.
func (b *Broker) Publish(st keyword.JobStatus) {
	st = Outbound(st)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.latest[st.JobID] = st
	for sub := range b.subs[st.JobID] {
		sub.offer(st)
	}
}

// Subscribe registers a subscriber and queues the latest snapshot as its
// first event. Unknown jobs return keyword.ErrJobNotFound.
func (b *Broker) Subscribe(jobID string) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.latest[jobID]
	if !ok {
		return nil, keyword.ErrJobNotFound
	}
	sub := &Subscription{
		jobID: jobID,
		ch:    make(chan keyword.JobStatus, b.buffer),
		done:  make(chan struct{}),
	}
	sub.offer(st)
	if b.subs[jobID] == nil {
		b.subs[jobID] = make(map[*Subscription]struct{})
	}
	b.subs[jobID][sub] = struct{}{}
	metrics.AddEventSubscribers(1)
	return sub, nil
}

// Unsubscribe releases sub. Safe to call more than once.
func (b *Broker) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.release(sub)
}

func (b *Broker) release(sub *Subscription) {
	sub.once.Do(func() {
		if set := b.subs[sub.jobID]; set != nil {
			delete(set, sub)
			if len(set) == 0 {
				delete(b.subs, sub.jobID)
			}
		}
		close(sub.done)
		metrics.AddEventSubscribers(-1)
	})
}

// Forget drops the snapshot of jobID and releases its subscribers.
func (b *Broker) Forget(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.latest, jobID)
	for sub := range b.subs[jobID] {
		b.release(sub)
	}
}

// Subscribers reports the live subscriber count for jobID.
func (b *Broker) Subscribers(jobID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[jobID])
}

// Outbound strips results from every snapshot except a Complete one.
func Outbound(st keyword.JobStatus) keyword.JobStatus {
	if st.Status != keyword.StatusComplete {
		st.Results = nil
	} else {
		st.Results = append([]keyword.ScoredKeyword(nil), st.Results...)
	}
	return st
}
