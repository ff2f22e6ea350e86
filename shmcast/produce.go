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

// ProduceTxn is a scoped write transaction over one slot. It is created by
// ProduceAt or EmplaceBack, used on the producer's stack for exactly one
// logical write, and must not be retained.
//
// The first payload access performs "write begin" (the version increment)
// lazily, once. Commit is explicit or implicit via Close; either way it
// cannot fail, and committing twice is the same as committing once. The
// forgiving-writer contract is deliberate and asymmetric to ConsumeTxn's
// strict one: the producer can always finish a write, so scope exit just
// finishes it.
//
// Typical use:
//
//	txn, err := p.EmplaceBack()
//	if err != nil { ... }
//	defer txn.Close()
//	*txn.Get() = quote
type ProduceTxn[T any] struct {
	c         *Container[T]
	slot      slotRef
	target    uint32
	began     bool
	committed bool
}

// Get returns a pointer to the slot payload in shared memory. The first
// call announces the write to readers; from then until Commit, readers of
// this slot spin rather than observe the mutation in progress.
func (t *ProduceTxn[T]) Get() *T {
	if !t.began {
		t.target = t.slot.writeBegin()
		t.began = true
	}
	return (*T)(t.slot.payload)
}

// Set assigns the whole payload.
func (t *ProduceTxn[T]) Set(v T) {
	*t.Get() = v
}

// Commit publishes the write. Idempotent; it cannot fail. A transaction
// committed without any payload access publishes the previous contents as a
// new version, keeping the slot counters consistent.
func (t *ProduceTxn[T]) Commit() {
	if t.committed {
		return
	}
	if !t.began {
		t.target = t.slot.writeBegin()
		t.began = true
	}
	// The atomic store is the release barrier covering the payload writes.
	t.slot.writeCommit(t.target)
	t.c.hdr.changeVersion.Add(1)
	t.c.commits.Add(1)
	t.committed = true
}

// Close commits the transaction if it has not been committed yet.
func (t *ProduceTxn[T]) Close() {
	t.Commit()
}
