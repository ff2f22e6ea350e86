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

import "errors"

var (
	// ErrProducerExists is returned when a producer tries to attach to a
	// region that already has a live producer.
	ErrProducerExists = errors.New("shmcast: a producer is already attached to this region")

	// ErrRegionMissing is returned when a consumer attaches to a path with
	// no backing store.
	ErrRegionMissing = errors.New("shmcast: backing store does not exist")

	// ErrCapacityExceeded is returned by EmplaceBack and PushBack once
	// size has reached capacity.
	ErrCapacityExceeded = errors.New("shmcast: container is at capacity")

	// ErrIndexOutOfRange is returned for a consume index >= size or a
	// produce index >= capacity.
	ErrIndexOutOfRange = errors.New("shmcast: slot index out of range")

	// ErrLayoutMismatch is returned when an existing region's header does
	// not describe the layout this container type expects.
	ErrLayoutMismatch = errors.New("shmcast: region layout does not match container type")

	// ErrInvalidPayload is returned when the payload type is not a
	// fixed-size, pointer-free type.
	ErrInvalidPayload = errors.New("shmcast: payload type must be fixed-size and pointer-free")

	// ErrInvalidCapacity is returned for a zero capacity at creation.
	ErrInvalidCapacity = errors.New("shmcast: capacity must be greater than zero")

	// ErrInvalidAlignment is returned for an alignment override that is
	// not a power of two or is smaller than the payload requires.
	ErrInvalidAlignment = errors.New("shmcast: invalid slot alignment")

	// ErrNotEnoughSpaceOnDevShm is returned when /dev/shm cannot hold the
	// requested region.
	ErrNotEnoughSpaceOnDevShm = errors.New("shmcast: not enough space left on /dev/shm")

	// ErrContainerClosed is returned by operations on a closed handle.
	ErrContainerClosed = errors.New("shmcast: container is closed")

	// ErrWrongRole is returned when a write operation is issued through a
	// handle that was not opened as the producer.
	ErrWrongRole = errors.New("shmcast: operation not permitted for this role")

	// ErrUserHeaderTooSmall is returned by UserHeaderAs when the region's
	// user header area cannot hold the requested type.
	ErrUserHeaderTooSmall = errors.New("shmcast: user header area too small for requested type")
)

// panicUnresolvedConsume is the message used when a ConsumeTxn is closed
// without resolving its consistency check. Reading a slot without validating
// it can silently expose torn data, so this is treated as a contract
// violation rather than a recoverable error.
const panicUnresolvedConsume = "shmcast: ConsumeTxn closed without TryCommit, GetCopy or Cancel"
