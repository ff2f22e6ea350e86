/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package shmcast

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/cenkalti/backoff/v4"
	"github.com/panjf2000/ants/v2"
)

// ChangeEvent is one observation of the region's coarse change counter.
// It is a best-effort signal: several commits may collapse into one event,
// and Size/Version describe the region at poll time, not at commit time.
// Consumers needing a consistent view of a slot still go through the
// per-slot protocol.
type ChangeEvent struct {
	Version uint64
	Size    uint64
}

// RegionWatcher is the handle surface the notifier polls. Producer,
// Consumer and Container all satisfy it.
type RegionWatcher interface {
	ChangeVersion() uint64
	Size() uint64
}

// NotifierConfig tunes a Notifier. Zero values select the defaults.
type NotifierConfig struct {
	// PollInterval is the polling period while changes keep arriving.
	PollInterval time.Duration
	// MaxPollInterval caps the exponential backoff while the region is
	// idle.
	MaxPollInterval time.Duration
	// QueueSize is the capacity of the pending-event ring buffer. Events
	// beyond it are dropped (and counted), never blocking the poller.
	QueueSize uint64
	// Workers is the size of the subscriber dispatch pool.
	Workers int
}

func (c *NotifierConfig) withDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Millisecond
	}
	if c.MaxPollInterval <= 0 {
		c.MaxPollInterval = 100 * time.Millisecond
	}
	if c.QueueSize == 0 {
		c.QueueSize = 1024
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
}

// Notifier polls a region's change counter and fans observed changes out to
// subscribers. It lives entirely outside the hot path: the producer never
// knows notifiers exist, and a slow subscriber costs dropped events, not
// writer latency.
type Notifier struct {
	watcher RegionWatcher
	cfg     NotifierConfig

	q    *queue.RingBuffer
	pool *ants.Pool

	mu   sync.RWMutex
	subs []func(ChangeEvent)

	dropped atomic.Uint64
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewNotifier starts a notifier over w. Close releases its goroutines and
// worker pool.
func NewNotifier(w RegionWatcher, cfg NotifierConfig) (*Notifier, error) {
	cfg.withDefaults()
	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, err
	}
	n := &Notifier{
		watcher: w,
		cfg:     cfg,
		q:       queue.NewRingBuffer(cfg.QueueSize),
		pool:    pool,
		stop:    make(chan struct{}),
	}
	n.wg.Add(2)
	// Capture the baseline before returning so changes committed after
	// NewNotifier are never folded into the poller's initial observation.
	go n.poll(w.ChangeVersion())
	go n.dispatch()
	return n, nil
}

// Subscribe registers fn for future change events. Callbacks run on the
// notifier's worker pool and must not retain the event's guarantees beyond
// what ChangeEvent documents.
func (n *Notifier) Subscribe(fn func(ChangeEvent)) {
	n.mu.Lock()
	n.subs = append(n.subs, fn)
	n.mu.Unlock()
}

// Dropped returns the number of events discarded because the pending queue
// was full.
func (n *Notifier) Dropped() uint64 { return n.dropped.Load() }

func (n *Notifier) poll(last uint64) {
	defer n.wg.Done()
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = n.cfg.PollInterval
	bo.MaxInterval = n.cfg.MaxPollInterval
	bo.MaxElapsedTime = 0 // poll forever
	bo.Reset()

	timer := time.NewTimer(n.cfg.PollInterval)
	defer timer.Stop()
	for {
		select {
		case <-n.stop:
			return
		case <-timer.C:
		}
		next := n.cfg.PollInterval
		if v := n.watcher.ChangeVersion(); v != last {
			last = v
			ev := ChangeEvent{Version: v, Size: n.watcher.Size()}
			if ok, err := n.q.Offer(ev); err != nil {
				return // disposed
			} else if !ok {
				n.dropped.Add(1)
			}
			bo.Reset()
		} else if d := bo.NextBackOff(); d != backoff.Stop {
			next = d
		}
		timer.Reset(next)
	}
}

func (n *Notifier) dispatch() {
	defer n.wg.Done()
	for {
		item, err := n.q.Get()
		if err != nil {
			return // disposed
		}
		ev, ok := item.(ChangeEvent)
		if !ok {
			continue
		}
		n.mu.RLock()
		subs := make([]func(ChangeEvent), len(n.subs))
		copy(subs, n.subs)
		n.mu.RUnlock()
		for _, fn := range subs {
			fn := fn
			if err := n.pool.Submit(func() { fn(ev) }); err != nil {
				internalLogger.warnf("notifier dispatch submit failed: %v", err)
			}
		}
	}
}

// Close stops polling and dispatching. Queued but undelivered events are
// discarded.
func (n *Notifier) Close() {
	close(n.stop)
	n.q.Dispose()
	n.wg.Wait()
	n.pool.Release()
}
