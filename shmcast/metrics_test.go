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

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// metricValue finds the sample of family name labelled with path and role,
// for either gauge or counter families.
func metricValue(t *testing.T, families []*dto.MetricFamily, name, path, role string) (float64, bool) {
	t.Helper()
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["path"] != path || labels["role"] != role {
				continue
			}
			if g := m.GetGauge(); g != nil {
				return g.GetValue(), true
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue(), true
			}
		}
	}
	return 0, false
}

func TestCollector(t *testing.T) {
	path := regionPath(t)

	prod, err := CreateProducer[quote](path, 8)
	require.NoError(t, err)
	defer prod.Close()
	for i := 0; i < 3; i++ {
		require.NoError(t, prod.PushBack(quote{BidPx: uint32(i)}))
	}

	cons, err := AttachConsumer[quote](path)
	require.NoError(t, err)
	defer cons.Close()
	_, err = cons.Snapshot(0)
	require.NoError(t, err)

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(NewCollector()))

	families, err := reg.Gather()
	require.NoError(t, err)

	size, ok := metricValue(t, families, "shmcast_region_size", path, "producer")
	require.True(t, ok, "producer size sample missing")
	assert.Equal(t, float64(3), size)

	capacity, ok := metricValue(t, families, "shmcast_region_capacity", path, "consumer")
	require.True(t, ok, "consumer capacity sample missing")
	assert.Equal(t, float64(8), capacity)

	commits, ok := metricValue(t, families, "shmcast_commits_total", path, "producer")
	require.True(t, ok)
	assert.Equal(t, float64(3), commits)

	version, ok := metricValue(t, families, "shmcast_region_change_version", path, "consumer")
	require.True(t, ok)
	assert.Equal(t, float64(3), version)

	refcount, ok := metricValue(t, families, "shmcast_region_refcount", path, "producer")
	require.True(t, ok)
	assert.Equal(t, float64(2), refcount)
}

func TestCollectorMergesHandles(t *testing.T) {
	path := regionPath(t)

	prod, err := CreateProducer[quote](path, 4)
	require.NoError(t, err)
	defer prod.Close()
	require.NoError(t, prod.PushBack(quote{}))

	// Two consumer handles on the same region: the collector must emit one
	// sample per (path, role), not one per handle.
	c1, err := AttachConsumer[quote](path)
	require.NoError(t, err)
	defer c1.Close()
	c2, err := AttachConsumer[quote](path)
	require.NoError(t, err)
	defer c2.Close()

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(NewCollector()))
	_, err = reg.Gather() // pedantic registry rejects duplicate label sets
	assert.NoError(t, err)
}
