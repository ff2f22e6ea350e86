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
	"sync/atomic"
	"unsafe"
)

// slotRef is a resolved view of one record slot inside the mapped region:
// the payload bytes plus the two version counters of the dual-counter
// protocol. It is computed per transaction and never stored.
//
// Protocol, writer side (single producer):
//
//	v := versionBegin.Add(1)   // announce a write of version v
//	<mutate payload, plain stores>
//	versionCommitted.Store(v)  // publish; the atomic store orders the
//	                           // payload stores ahead of it
//
// Reader side:
//
//	base := versionCommitted.Load() // baseline before copying
//	<copy payload, plain loads>
//	versionBegin.Load() == base     // accept, else refresh baseline from
//	                                // versionCommitted and re-copy
//
// An accepted copy is exactly the payload of one committed write: the
// commit store of version base happened before the baseline load, and no
// write of base+1 had begun by the time the copy finished.
type slotRef struct {
	payload unsafe.Pointer
	begin   *atomic.Uint32
	commit  *atomic.Uint32
}

func makeSlotRef(slot unsafe.Pointer, trailerOff uint64) slotRef {
	return slotRef{
		payload: slot,
		begin:   (*atomic.Uint32)(unsafe.Add(slot, trailerOff)),
		commit:  (*atomic.Uint32)(unsafe.Add(slot, trailerOff+4)),
	}
}

// writeBegin announces an in-flight write and returns its target version.
func (s slotRef) writeBegin() uint32 {
	return s.begin.Add(1)
}

// writeCommit publishes version v. After it, versionBegin == versionCommitted
// and the slot is consistent.
func (s slotRef) writeCommit(v uint32) {
	s.commit.Store(v)
}

// readBegin returns the baseline version for a read.
func (s slotRef) readBegin() uint32 {
	return s.commit.Load()
}

// readValidate checks a copy made after readBegin returned baseline. On
// failure it returns a fresh baseline for the retry, taken from the commit
// counter: taking it from the begin counter would let a reader accept bytes
// copied while that same write was still mutating the payload.
func (s slotRef) readValidate(baseline uint32) (uint32, bool) {
	if s.begin.Load() == baseline {
		return baseline, true
	}
	return s.commit.Load(), false
}
