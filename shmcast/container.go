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

// Package shmcast is a zero-copy, lock-free transport that broadcasts a
// frequently updated, fixed-layout record array from exactly one writer
// process to any number of reader processes on the same host.
//
// A region is a file-backed shared memory mapping laid out as a fixed
// header followed by a contiguous array of cache-line-aligned slots. Each
// slot carries the payload plus two version counters; the dual-counter
// protocol (see slot.go) lets readers detect and retry torn reads without
// locks, syscalls or heap allocation on the hot path.
//
// The recommended surface is the role-scoped Producer and Consumer
// wrappers; OpenContainer exposes the unrestricted facade.
package shmcast

import (
	"fmt"
	"iter"
	"os"
	"reflect"
	"sync/atomic"
	"unsafe"

	"github.com/srediag/shmcast/internal/mmap"
)

// Role selects the side a handle attaches as.
type Role uint8

const (
	// RoleProducer creates (or re-attaches to) the region and is the only
	// handle allowed to write.
	RoleProducer Role = iota + 1
	// RoleConsumer attaches to an existing region read-only.
	RoleConsumer
)

func (r Role) String() string {
	switch r {
	case RoleProducer:
		return "producer"
	case RoleConsumer:
		return "consumer"
	default:
		return "unknown"
	}
}

// Container is the shared-memory record container facade for payload type T.
// T must be a fixed-size, pointer-free type; this is checked once when the
// container is opened. All handles of a region, in every process, must be
// instantiated with the same T and the same layout options.
//
// A Container is safe for use according to its role contract: one producer
// handle writes, any number of consumer handles read concurrently. The
// handle itself is not a synchronization point; the per-slot counters are.
type Container[T any] struct {
	region *mmap.Region
	hdr    *regionHeader
	base   unsafe.Pointer
	lay    regionLayout
	path   string
	role   Role
	closed atomic.Bool

	regID   uint64
	commits *atomic.Uint64
	retries *atomic.Uint64
}

// OpenContainer opens the general container facade. capacity is required for
// RoleProducer and ignored for RoleConsumer (the region's recorded capacity
// is adopted and validated instead). Most callers should use CreateProducer
// or AttachConsumer, which restrict the surface to the operations valid for
// their role.
func OpenContainer[T any](path string, capacity uint64, role Role, opts ...Option) (*Container[T], error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	pt := reflect.TypeFor[T]()
	if err := checkPayloadType(pt); err != nil {
		return nil, err
	}
	payloadSize := uint64(pt.Size())
	payloadAlign := uint64(pt.Align())

	var (
		c   *Container[T]
		err error
	)
	switch role {
	case RoleProducer:
		c, err = createOrClaim[T](path, capacity, payloadSize, payloadAlign, o)
	case RoleConsumer:
		c, err = attach[T](path, payloadSize, payloadAlign, o)
	default:
		return nil, fmt.Errorf("shmcast: invalid role %d", role)
	}
	if err != nil {
		return nil, err
	}

	c.hdr.refcount.Add(1)
	c.regID, c.commits, c.retries = registerRegion(c.path, c.role, c.hdr)
	internalLogger.infof("attached %s to region %s (capacity=%d stride=%d)",
		role, path, c.hdr.capacity, c.hdr.slotStride)
	return c, nil
}

func createOrClaim[T any](path string, capacity, payloadSize, payloadAlign uint64, o Options) (*Container[T], error) {
	if capacity == 0 {
		return nil, ErrInvalidCapacity
	}
	lay, err := computeLayout(capacity, payloadSize, payloadAlign, o)
	if err != nil {
		return nil, err
	}

	if !pathExists(path) {
		if !canCreateOnDevShm(lay.totalSize, path) {
			return nil, fmt.Errorf("%w: path %s, need %d bytes", ErrNotEnoughSpaceOnDevShm, path, lay.totalSize)
		}
		region, err := mmap.Create(path, int64(lay.totalSize), o.fileMode)
		if err == nil {
			c := overlay[T](region, lay, RoleProducer)
			initHeader(c.hdr, lay, o)
			// Fresh region, the claim cannot be contested.
			c.hdr.claimProducer(uint32(os.Getpid()))
			return c, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}
		// Lost a creation race; claim the existing region below.
	}

	region, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	c := overlay[T](region, lay, RoleProducer)
	if err := validateHeader(c.hdr, lay, capacity); err != nil {
		_ = region.Close()
		return nil, err
	}
	if uint64(len(region.Data)) != lay.totalSize {
		_ = region.Close()
		return nil, fmt.Errorf("%w: region is %d bytes, layout needs %d",
			ErrLayoutMismatch, len(region.Data), lay.totalSize)
	}
	if !c.hdr.claimProducer(uint32(os.Getpid())) {
		ownerPID := c.hdr.producerPID.Load()
		_ = region.Close()
		return nil, fmt.Errorf("%w: path %s, producer pid %d",
			ErrProducerExists, path, ownerPID)
	}
	return c, nil
}

func attach[T any](path string, payloadSize, payloadAlign uint64, o Options) (*Container[T], error) {
	region, err := mmap.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRegionMissing, path)
		}
		return nil, err
	}
	if len(region.Data) < headerSize {
		_ = region.Close()
		return nil, fmt.Errorf("%w: region is only %d bytes", ErrLayoutMismatch, len(region.Data))
	}

	hdr := (*regionHeader)(unsafe.Pointer(&region.Data[0]))
	if hdr.layoutVersion.Load() == 0 {
		// Creator has the file but has not published the header yet.
		_ = region.Close()
		return nil, fmt.Errorf("%w: %s not initialized yet", ErrRegionMissing, path)
	}

	// Probe layout first so the capacity can be adopted from the header.
	probe, err := computeLayout(1, payloadSize, payloadAlign, o)
	if err != nil {
		_ = region.Close()
		return nil, err
	}
	if err := validateHeader(hdr, probe, 0); err != nil {
		_ = region.Close()
		return nil, err
	}
	lay, err := computeLayout(hdr.capacity, payloadSize, payloadAlign, o)
	if err != nil {
		_ = region.Close()
		return nil, err
	}
	if uint64(len(region.Data)) != lay.totalSize {
		_ = region.Close()
		return nil, fmt.Errorf("%w: region is %d bytes, layout needs %d",
			ErrLayoutMismatch, len(region.Data), lay.totalSize)
	}
	return overlay[T](region, lay, RoleConsumer), nil
}

func overlay[T any](region *mmap.Region, lay regionLayout, role Role) *Container[T] {
	base := unsafe.Pointer(&region.Data[0])
	return &Container[T]{
		region: region,
		hdr:    (*regionHeader)(base),
		base:   base,
		lay:    lay,
		path:   region.Path,
		role:   role,
	}
}

// Size returns the number of populated slots. It is non-decreasing and only
// advanced by the producer.
func (c *Container[T]) Size() uint64 { return c.hdr.size.Load() }

// Capacity returns the fixed slot count of the region.
func (c *Container[T]) Capacity() uint64 { return c.hdr.capacity }

// ChangeVersion returns the region's coarse change counter. It is bumped on
// every produce commit and is a best-effort external change signal only; the
// per-slot counters are authoritative for consistency.
func (c *Container[T]) ChangeVersion() uint64 { return c.hdr.changeVersion.Load() }

// Refcount returns the number of live attach handles across all processes.
func (c *Container[T]) Refcount() uint64 { return c.hdr.refcount.Load() }

// ProducerPID returns the pid recorded by the attached producer, or 0.
func (c *Container[T]) ProducerPID() uint32 { return c.hdr.producerPID.Load() }

// Path returns the backing store path.
func (c *Container[T]) Path() string { return c.path }

// Role returns the role this handle attached as.
func (c *Container[T]) Role() Role { return c.role }

// UserHeader returns the caller-defined metadata area embedded in the
// region header. Its size is fixed by WithUserHeaderSize at creation; the
// contents are opaque to shmcast and not covered by any consistency
// protocol.
func (c *Container[T]) UserHeader() []byte {
	if c.lay.userHdrSize == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Add(c.base, headerSize)), c.lay.userHdrSize)
}

func (c *Container[T]) slotRefAt(i uint64) slotRef {
	slot := unsafe.Add(c.base, uintptr(c.lay.slotsOff+i*c.lay.stride))
	return makeSlotRef(slot, c.lay.trailerOff)
}

// ProduceAt begins a write transaction on slot i. i must be below capacity;
// slots at or beyond Size become visible to consumers only once Size is
// advanced past them. Producer handles only.
func (c *Container[T]) ProduceAt(i uint64) (*ProduceTxn[T], error) {
	if c.closed.Load() {
		return nil, ErrContainerClosed
	}
	if c.role != RoleProducer {
		return nil, fmt.Errorf("%w: ProduceAt requires a producer handle", ErrWrongRole)
	}
	if i >= c.hdr.capacity {
		return nil, fmt.Errorf("%w: index %d, capacity %d", ErrIndexOutOfRange, i, c.hdr.capacity)
	}
	return &ProduceTxn[T]{c: c, slot: c.slotRefAt(i)}, nil
}

// ConsumeAt begins a read transaction on populated slot i. The returned
// transaction must be resolved (TryCommit, GetCopy or Cancel) before Close.
func (c *Container[T]) ConsumeAt(i uint64) (*ConsumeTxn[T], error) {
	if c.closed.Load() {
		return nil, ErrContainerClosed
	}
	if n := c.Size(); i >= n {
		return nil, fmt.Errorf("%w: index %d, size %d", ErrIndexOutOfRange, i, n)
	}
	return &ConsumeTxn[T]{c: c, slot: c.slotRefAt(i)}, nil
}

// EmplaceBack reserves the next slot, advances Size by one and returns a
// write transaction over the reserved slot. Producer handles only.
func (c *Container[T]) EmplaceBack() (*ProduceTxn[T], error) {
	if c.closed.Load() {
		return nil, ErrContainerClosed
	}
	if c.role != RoleProducer {
		return nil, fmt.Errorf("%w: EmplaceBack requires a producer handle", ErrWrongRole)
	}
	next := c.hdr.size.Load()
	if next >= c.hdr.capacity {
		return nil, fmt.Errorf("%w: capacity %d", ErrCapacityExceeded, c.hdr.capacity)
	}
	// Single producer: a plain atomic store is enough, there is no
	// competing writer to race the reservation with.
	c.hdr.size.Store(next + 1)
	return &ProduceTxn[T]{c: c, slot: c.slotRefAt(next)}, nil
}

// PushBack reserves the next slot, assigns v and commits.
func (c *Container[T]) PushBack(v T) error {
	txn, err := c.EmplaceBack()
	if err != nil {
		return err
	}
	txn.Set(v)
	txn.Commit()
	return nil
}

// Snapshot returns a consistent copy of slot i, retrying until a
// version-stable copy is observed. Available to either role.
func (c *Container[T]) Snapshot(i uint64) (T, error) {
	var zero T
	if c.closed.Load() {
		return zero, ErrContainerClosed
	}
	if n := c.Size(); i >= n {
		return zero, fmt.Errorf("%w: index %d, size %d", ErrIndexOutOfRange, i, n)
	}
	txn := ConsumeTxn[T]{c: c, slot: c.slotRefAt(i)}
	return txn.GetCopy(), nil
}

// All iterates the populated slots in index order, yielding a consistent
// copy of each. Iteration is restartable but not snapshot-isolated: under a
// concurrent producer, different elements may reflect different points in
// time. Each element on its own is never torn.
func (c *Container[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		n := c.Size()
		for i := uint64(0); i < n; i++ {
			v, err := c.Snapshot(i)
			if err != nil {
				return
			}
			if !yield(int(i), v) {
				return
			}
		}
	}
}

// Close detaches the handle: it releases the producer flag (producer
// handles), decrements the region refcount, unmaps the region and removes
// the backing store if this was the last handle of a region created with
// WithDeleteOnLastDetach. Close is idempotent.
func (c *Container[T]) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	unregisterRegion(c.regID)
	if c.role == RoleProducer {
		c.hdr.releaseProducer()
	}
	lastDetach := c.hdr.refcount.Add(^uint64(0)) == 0
	deleteBacking := c.hdr.deleteOnLastDetach() && lastDetach

	err := c.region.Close()
	if deleteBacking {
		if rmErr := mmap.Remove(c.path); rmErr != nil && !os.IsNotExist(rmErr) {
			internalLogger.warnf("remove region %s failed: %v", c.path, rmErr)
			if err == nil {
				err = rmErr
			}
		} else {
			internalLogger.infof("removed region %s on last detach", c.path)
		}
	}
	return err
}

// UserHeaderAs reinterprets a handle's user header area as *U. U must be a
// fixed-size, pointer-free type that fits in the area. Like the payload,
// the user header is shared memory; concurrent access discipline is the
// caller's responsibility.
func UserHeaderAs[U any](h interface{ UserHeader() []byte }) (*U, error) {
	ut := reflect.TypeFor[U]()
	if err := checkPayloadType(ut); err != nil {
		return nil, err
	}
	b := h.UserHeader()
	if uint64(len(b)) < uint64(ut.Size()) {
		return nil, fmt.Errorf("%w: have %d bytes, need %d", ErrUserHeaderTooSmall, len(b), ut.Size())
	}
	return (*U)(unsafe.Pointer(&b[0])), nil
}

// checkPayloadType rejects types whose bit pattern is not meaningful across
// process boundaries. Pointers, maps, slices, strings, channels, functions
// and interfaces all reference process-local memory and can never live in a
// shared region.
func checkPayloadType(t reflect.Type) error {
	if t.Size() == 0 {
		return fmt.Errorf("%w: %s has zero size", ErrInvalidPayload, t)
	}
	if kindHasPointers(t) {
		return fmt.Errorf("%w: %s contains pointers", ErrInvalidPayload, t)
	}
	return nil
}

func kindHasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Map, reflect.Chan,
		reflect.Func, reflect.Interface, reflect.Slice, reflect.String:
		return true
	case reflect.Array:
		return kindHasPointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if kindHasPointers(t.Field(i).Type) {
				return true
			}
		}
	}
	return false
}
