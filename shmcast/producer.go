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

import "iter"

// Producer is the role-scoped writer handle over a container. It exposes
// only the operations valid for the single producer of a region; handing a
// Producer to code that should merely read is a type error, not a runtime
// check. It delegates to the same underlying container a Consumer would.
type Producer[T any] struct {
	c *Container[T]
}

// CreateProducer creates the backing store for a new region sized for
// capacity slots, or re-attaches to an existing region of identical layout
// that currently has no producer, and claims producer exclusivity. It fails
// with ErrProducerExists while another producer holds the claim and with
// ErrLayoutMismatch if an existing store disagrees on capacity or layout.
func CreateProducer[T any](path string, capacity uint64, opts ...Option) (*Producer[T], error) {
	c, err := OpenContainer[T](path, capacity, RoleProducer, opts...)
	if err != nil {
		return nil, err
	}
	return &Producer[T]{c: c}, nil
}

// Size returns the number of populated slots.
func (p *Producer[T]) Size() uint64 { return p.c.Size() }

// Capacity returns the fixed slot count of the region.
func (p *Producer[T]) Capacity() uint64 { return p.c.Capacity() }

// ChangeVersion returns the region's coarse change counter.
func (p *Producer[T]) ChangeVersion() uint64 { return p.c.ChangeVersion() }

// UserHeader returns the caller-defined metadata area.
func (p *Producer[T]) UserHeader() []byte { return p.c.UserHeader() }

// Path returns the backing store path.
func (p *Producer[T]) Path() string { return p.c.Path() }

// ProduceAt begins a write transaction on slot i (i < Capacity).
func (p *Producer[T]) ProduceAt(i uint64) (*ProduceTxn[T], error) { return p.c.ProduceAt(i) }

// EmplaceBack reserves the next slot and returns a write transaction on it.
func (p *Producer[T]) EmplaceBack() (*ProduceTxn[T], error) { return p.c.EmplaceBack() }

// PushBack appends v: reserve, assign, commit.
func (p *Producer[T]) PushBack(v T) error { return p.c.PushBack(v) }

// Snapshot returns a consistent copy of populated slot i. The producer may
// read its own region; writes remain exclusively its own.
func (p *Producer[T]) Snapshot(i uint64) (T, error) { return p.c.Snapshot(i) }

// All iterates the populated slots, yielding consistent copies.
func (p *Producer[T]) All() iter.Seq2[int, T] { return p.c.All() }

// Close releases producer exclusivity and detaches from the region.
func (p *Producer[T]) Close() error { return p.c.Close() }
