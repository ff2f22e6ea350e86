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

// ConsumeTxn is a scoped read transaction over one slot. It is created by
// ConsumeAt, used on the consumer's stack for exactly one logical read, and
// must not be retained.
//
// The contract is strict by design: a transaction must be resolved before
// Close, either by a successful TryCommit, by GetCopy, or by an explicit
// Cancel. A consumer that reads the payload pointer and never validates
// would silently act on potentially torn bytes, so dropping an unresolved
// transaction panics instead of being ignored.
//
// Typical use:
//
//	txn, err := c.ConsumeAt(0)
//	if err != nil { ... }
//	defer txn.Close()
//	quote := txn.GetCopy()
type ConsumeTxn[T any] struct {
	c        *Container[T]
	slot     slotRef
	baseline uint32
	began    bool
	resolved bool
}

// Get returns a pointer to the slot payload in shared memory. The first
// call records the read baseline. The pointed-to bytes may be torn while a
// write is in flight; they are only trustworthy once TryCommit has accepted
// the read, and only as a copy taken before that TryCommit.
func (t *ConsumeTxn[T]) Get() *T {
	if !t.began {
		t.baseline = t.slot.readBegin()
		t.began = true
	}
	return (*T)(t.slot.payload)
}

// TryCommit performs one validation step of the dual-counter protocol. It
// returns true if everything read since the baseline was recorded is
// consistent, resolving the transaction. On false, the baseline has been
// refreshed and the caller must redo its copy before calling TryCommit
// again.
func (t *ConsumeTxn[T]) TryCommit() bool {
	if !t.began {
		// Validating without reading: record the baseline now, the next
		// check then covers an empty read, which is trivially consistent.
		t.baseline = t.slot.readBegin()
		t.began = true
	}
	baseline, ok := t.slot.readValidate(t.baseline)
	t.baseline = baseline
	if ok {
		t.resolved = true
		return true
	}
	t.c.retries.Add(1)
	return false
}

// GetCopy loops copy-and-validate until a version-stable snapshot is
// accepted and returns it. It never blocks and never returns torn data;
// under a concurrent writer it spins for at most the duration of the
// in-flight write. Callers needing bounded latency must impose their own
// retry limit via TryCommit.
func (t *ConsumeTxn[T]) GetCopy() T {
	var out T
	for {
		out = *t.Get()
		if t.TryCommit() {
			return out
		}
	}
}

// Cancel abandons the read without validating it. Use it only when the data
// read (if any) is discarded as well.
func (t *ConsumeTxn[T]) Cancel() {
	t.resolved = true
}

// Close checks that the transaction was resolved. Closing an unresolved
// transaction is a contract violation and panics.
func (t *ConsumeTxn[T]) Close() {
	if !t.resolved {
		panic(panicUnresolvedConsume)
	}
}
