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

import "os"

const (
	// defaultAlignment is the default slot alignment. One cache line keeps
	// adjacent slots from false-sharing between the producer and readers of
	// neighbouring records.
	defaultAlignment = 64

	defaultFileMode os.FileMode = 0o600
)

// Options control region creation and attachment. All attached handles of a
// region must agree on the layout-affecting options (alignment, user header
// size); the header validation on attach enforces this.
type Options struct {
	alignment      uint64
	userHeaderSize uint32
	deleteOnDetach bool
	fileMode       os.FileMode
}

// Option mutates Options.
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		alignment: defaultAlignment,
		fileMode:  defaultFileMode,
	}
}

// WithAlignment overrides the slot alignment. The value must be a power of
// two, at least 4 (the version counters are 4-byte atomics) and at least the
// payload's natural alignment.
func WithAlignment(align uint64) Option {
	return func(o *Options) { o.alignment = align }
}

// WithUserHeaderSize reserves size bytes of caller-defined metadata in the
// region header. The area is opaque to shmcast; see Container.UserHeader and
// UserHeaderAs.
func WithUserHeaderSize(size uint32) Option {
	return func(o *Options) { o.userHeaderSize = size }
}

// WithDeleteOnLastDetach marks the region for removal once its reference
// count returns to zero. Only meaningful at creation; attaching handles
// adopt the policy recorded in the header.
func WithDeleteOnLastDetach() Option {
	return func(o *Options) { o.deleteOnDetach = true }
}

// WithFileMode sets the permissions of a newly created backing file.
func WithFileMode(mode os.FileMode) Option {
	return func(o *Options) { o.fileMode = mode }
}
