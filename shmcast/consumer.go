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
	"context"
	"errors"
	"iter"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Consumer is the role-scoped reader handle over a container. It exposes
// only read operations; any number of Consumers, across any number of
// processes, may work on the same region concurrently without coordinating.
type Consumer[T any] struct {
	c *Container[T]
}

// AttachConsumer attaches to an existing region. It fails with
// ErrRegionMissing when the backing store does not exist (or is not
// published yet) and with ErrLayoutMismatch when the region was created for
// a different payload layout.
func AttachConsumer[T any](path string, opts ...Option) (*Consumer[T], error) {
	c, err := OpenContainer[T](path, 0, RoleConsumer, opts...)
	if err != nil {
		return nil, err
	}
	return &Consumer[T]{c: c}, nil
}

// AttachConsumerWait is AttachConsumer with an exponential backoff retry on
// ErrRegionMissing, for consumers that may start before the producer has
// created the region. Any other error aborts immediately. The wait is
// bounded by ctx.
func AttachConsumerWait[T any](ctx context.Context, path string, opts ...Option) (*Consumer[T], error) {
	var cons *Consumer[T]
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 5 * time.Millisecond
	bo.MaxInterval = 500 * time.Millisecond
	op := func() error {
		c, err := AttachConsumer[T](path, opts...)
		if err != nil {
			if errors.Is(err, ErrRegionMissing) {
				return err
			}
			return backoff.Permanent(err)
		}
		cons = c
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return cons, nil
}

// Size returns the number of populated slots.
func (c *Consumer[T]) Size() uint64 { return c.c.Size() }

// Capacity returns the fixed slot count of the region.
func (c *Consumer[T]) Capacity() uint64 { return c.c.Capacity() }

// ChangeVersion returns the region's coarse change counter.
func (c *Consumer[T]) ChangeVersion() uint64 { return c.c.ChangeVersion() }

// UserHeader returns the caller-defined metadata area.
func (c *Consumer[T]) UserHeader() []byte { return c.c.UserHeader() }

// Path returns the backing store path.
func (c *Consumer[T]) Path() string { return c.c.Path() }

// ProducerPID returns the pid recorded by the attached producer, or 0.
func (c *Consumer[T]) ProducerPID() uint32 { return c.c.ProducerPID() }

// ConsumeAt begins a read transaction on populated slot i.
func (c *Consumer[T]) ConsumeAt(i uint64) (*ConsumeTxn[T], error) { return c.c.ConsumeAt(i) }

// Snapshot returns a consistent copy of populated slot i.
func (c *Consumer[T]) Snapshot(i uint64) (T, error) { return c.c.Snapshot(i) }

// All iterates the populated slots, yielding consistent copies.
func (c *Consumer[T]) All() iter.Seq2[int, T] { return c.c.All() }

// Close detaches from the region.
func (c *Consumer[T]) Close() error { return c.c.Close() }
