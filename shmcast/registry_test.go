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

func findStats(stats []RegionStats, path string, role Role) (RegionStats, bool) {
	for _, s := range stats {
		if s.Path == path && s.Role == role {
			return s, true
		}
	}
	return RegionStats{}, false
}

func TestRegionsTracksOpenHandles(t *testing.T) {
	path := regionPath(t)

	prod, err := CreateProducer[quote](path, 4)
	require.NoError(t, err)
	require.NoError(t, prod.PushBack(quote{}))

	cons, err := AttachConsumer[quote](path)
	require.NoError(t, err)

	stats := Regions()
	ps, ok := findStats(stats, path, RoleProducer)
	require.True(t, ok, "producer handle not registered")
	assert.Equal(t, uint64(4), ps.Capacity)
	assert.Equal(t, uint64(1), ps.Size)
	assert.Equal(t, uint64(1), ps.Commits)
	assert.NotZero(t, ps.ProducerPID)

	_, ok = findStats(stats, path, RoleConsumer)
	require.True(t, ok, "consumer handle not registered")

	require.NoError(t, prod.Close())
	require.NoError(t, cons.Close())

	stats = Regions()
	_, ok = findStats(stats, path, RoleProducer)
	assert.False(t, ok, "closed producer handle still registered")
	_, ok = findStats(stats, path, RoleConsumer)
	assert.False(t, ok, "closed consumer handle still registered")
}
