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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitIdempotent(t *testing.T) {
	path := regionPath(t)

	prod, err := CreateProducer[quote](path, 4)
	require.NoError(t, err)
	defer prod.Close()

	txn, err := prod.EmplaceBack()
	require.NoError(t, err)
	txn.Set(quote{BidPx: 7})

	before := prod.ChangeVersion()
	txn.Commit()
	txn.Commit()
	txn.Close()
	assert.Equal(t, before+1, prod.ChangeVersion())

	// The slot is consistent: both counters agree.
	assert.Equal(t, txn.slot.begin.Load(), txn.slot.commit.Load())
}

func TestCloseAutoCommits(t *testing.T) {
	path := regionPath(t)

	prod, err := CreateProducer[quote](path, 4)
	require.NoError(t, err)
	defer prod.Close()

	before := prod.ChangeVersion()
	txn, err := prod.EmplaceBack()
	require.NoError(t, err)
	txn.Get().BidPx = 123
	txn.Close() // no explicit Commit

	assert.Equal(t, before+1, prod.ChangeVersion())
	got, err := prod.Snapshot(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(123), got.BidPx)
}

func TestCommitWithoutPayloadAccess(t *testing.T) {
	path := regionPath(t)

	prod, err := CreateProducer[quote](path, 4)
	require.NoError(t, err)
	defer prod.Close()

	require.NoError(t, prod.PushBack(quote{BidPx: 5}))

	// Republishing without touching the payload keeps the counters paired
	// and the previous contents intact.
	txn, err := prod.ProduceAt(0)
	require.NoError(t, err)
	txn.Close()

	assert.Equal(t, txn.slot.begin.Load(), txn.slot.commit.Load())
	got, err := prod.Snapshot(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), got.BidPx)
}

func TestProduceAtRewritesInPlace(t *testing.T) {
	path := regionPath(t)

	prod, err := CreateProducer[quote](path, 4)
	require.NoError(t, err)
	defer prod.Close()

	require.NoError(t, prod.PushBack(quote{BidPx: 1}))
	require.NoError(t, prod.PushBack(quote{BidPx: 2}))

	txn, err := prod.ProduceAt(0)
	require.NoError(t, err)
	txn.Set(quote{BidPx: 100})
	txn.Commit()

	// In-place rewrite does not grow the container.
	assert.Equal(t, uint64(2), prod.Size())
	got, err := prod.Snapshot(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(100), got.BidPx)
	got, err = prod.Snapshot(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), got.BidPx)
}

func TestProduceAtBeyondCapacity(t *testing.T) {
	path := regionPath(t)

	prod, err := CreateProducer[quote](path, 2)
	require.NoError(t, err)
	defer prod.Close()

	// ProduceAt addresses any slot below capacity, populated or not.
	txn, err := prod.ProduceAt(1)
	require.NoError(t, err)
	txn.Close()

	_, err = prod.ProduceAt(2)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}
