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
	"fmt"
	"sync/atomic"
	"unsafe"
)

const (
	// headerSize is the fixed part of the region header. The optional user
	// header area follows it, then padding up to the first slot.
	headerSize = 128

	// regionLayoutVersion is bumped whenever the byte layout changes
	// incompatibly.
	regionLayoutVersion = uint32(1)
)

var regionMagic = [8]byte{'S', 'H', 'M', 'C', 'A', 'S', 'T', 0}

const flagDeleteOnLastDetach = uint32(1 << 0)

// regionHeader is the single shared header at offset 0 of every region.
// It is overlaid directly onto the mapped bytes, so the field layout is the
// wire format: offsets are fixed and the struct must stay exactly
// headerSize bytes.
//
// layoutVersion doubles as the publish flag: the creator fills in every
// other field first and stores layoutVersion last, so an attacher that
// observes a valid magic and a non-zero layoutVersion also observes a fully
// initialized header.
type regionHeader struct {
	magic         [8]byte       // 0x00: "SHMCAST\0"
	layoutVersion atomic.Uint32 // 0x08: layout version, non-zero once published
	flags         uint32        // 0x0C: region policy flags
	capacity      uint64        // 0x10: slot count, fixed at creation
	payloadSize   uint64        // 0x18: payload bytes per slot
	slotStride    uint64        // 0x20: bytes per slot including counters and padding
	alignment     uint32        // 0x28: slot alignment
	userHdrSize   uint32        // 0x2C: user header bytes after the fixed header
	size          atomic.Uint64 // 0x30: populated slots, advanced by the producer only
	changeVersion atomic.Uint64 // 0x38: coarse change counter, bumped on every commit
	refcount      atomic.Uint64 // 0x40: live attach handles across all processes
	hasProducer   atomic.Uint32 // 0x48: producer exclusivity flag
	producerPID   atomic.Uint32 // 0x4C: pid of the attached producer, 0 if none
	_             [48]byte      // 0x50-0x7F: reserved
}

func init() {
	if unsafe.Sizeof(regionHeader{}) != headerSize {
		panic(fmt.Sprintf("shmcast: regionHeader is %d bytes, expected %d",
			unsafe.Sizeof(regionHeader{}), headerSize))
	}
}

// regionLayout is the computed byte layout of a region for one payload type.
type regionLayout struct {
	capacity    uint64
	payloadSize uint64
	alignment   uint64
	userHdrSize uint32
	trailerOff  uint64 // offset of versionBegin within a slot
	stride      uint64
	slotsOff    uint64 // offset of slot 0 within the region
	totalSize   uint64
}

const slotTrailerSize = 8 // versionBegin + versionCommitted, both uint32

func computeLayout(capacity, payloadSize, payloadAlign uint64, opts Options) (regionLayout, error) {
	if capacity == 0 {
		return regionLayout{}, ErrInvalidCapacity
	}
	align := opts.alignment
	if !isPowerOfTwo(align) || align < 4 || align < payloadAlign {
		return regionLayout{}, fmt.Errorf("%w: %d (payload alignment %d)",
			ErrInvalidAlignment, align, payloadAlign)
	}
	lay := regionLayout{
		capacity:    capacity,
		payloadSize: payloadSize,
		alignment:   align,
		userHdrSize: opts.userHeaderSize,
	}
	lay.trailerOff = alignUp(payloadSize, 4)
	lay.stride = alignUp(lay.trailerOff+slotTrailerSize, align)
	lay.slotsOff = alignUp(headerSize+uint64(opts.userHeaderSize), align)
	lay.totalSize = lay.slotsOff + capacity*lay.stride
	return lay, nil
}

// initHeader fills in a freshly mapped (zeroed) header and publishes it.
func initHeader(h *regionHeader, lay regionLayout, opts Options) {
	h.magic = regionMagic
	if opts.deleteOnDetach {
		h.flags |= flagDeleteOnLastDetach
	}
	h.capacity = lay.capacity
	h.payloadSize = lay.payloadSize
	h.slotStride = lay.stride
	h.alignment = uint32(lay.alignment)
	h.userHdrSize = lay.userHdrSize
	// Publish: everything above must be visible before the version.
	h.layoutVersion.Store(regionLayoutVersion)
}

// validateHeader checks that an existing region was laid out for exactly the
// payload type and options of the attaching handle. expectCapacity of zero
// means "take the region's capacity" (consumer attach).
func validateHeader(h *regionHeader, lay regionLayout, expectCapacity uint64) error {
	if h.magic != regionMagic {
		return fmt.Errorf("%w: bad magic", ErrLayoutMismatch)
	}
	if v := h.layoutVersion.Load(); v != regionLayoutVersion {
		return fmt.Errorf("%w: layout version %d, expected %d", ErrLayoutMismatch, v, regionLayoutVersion)
	}
	if expectCapacity != 0 && h.capacity != expectCapacity {
		return fmt.Errorf("%w: capacity %d, expected %d", ErrLayoutMismatch, h.capacity, expectCapacity)
	}
	if h.capacity == 0 {
		return fmt.Errorf("%w: zero capacity", ErrLayoutMismatch)
	}
	if h.payloadSize != lay.payloadSize {
		return fmt.Errorf("%w: payload size %d, expected %d", ErrLayoutMismatch, h.payloadSize, lay.payloadSize)
	}
	if uint64(h.alignment) != lay.alignment {
		return fmt.Errorf("%w: alignment %d, expected %d", ErrLayoutMismatch, h.alignment, lay.alignment)
	}
	if h.slotStride != lay.stride {
		return fmt.Errorf("%w: slot stride %d, expected %d", ErrLayoutMismatch, h.slotStride, lay.stride)
	}
	if h.userHdrSize != lay.userHdrSize {
		return fmt.Errorf("%w: user header size %d, expected %d", ErrLayoutMismatch, h.userHdrSize, lay.userHdrSize)
	}
	return nil
}

func (h *regionHeader) deleteOnLastDetach() bool {
	return h.flags&flagDeleteOnLastDetach != 0
}

// claimProducer takes the exclusivity flag. At most one attached handle per
// region may hold it.
func (h *regionHeader) claimProducer(pid uint32) bool {
	if !h.hasProducer.CompareAndSwap(0, 1) {
		return false
	}
	h.producerPID.Store(pid)
	return true
}

func (h *regionHeader) releaseProducer() {
	h.producerPID.Store(0)
	h.hasProducer.Store(0)
}
