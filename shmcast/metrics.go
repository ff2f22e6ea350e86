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

import "github.com/prometheus/client_golang/prometheus"

// Collector exports one metric family per region statistic for every handle
// open in this process. It reads shared counters with plain atomic loads at
// scrape time; nothing on the produce/consume hot path knows it exists.
//
//	prometheus.MustRegister(shmcast.NewCollector())
type Collector struct {
	size          *prometheus.Desc
	capacity      *prometheus.Desc
	changeVersion *prometheus.Desc
	refcount      *prometheus.Desc
	commits       *prometheus.Desc
	retries       *prometheus.Desc
}

var regionLabels = []string{"path", "role"}

// NewCollector returns a collector over all handles opened by this process.
func NewCollector() *Collector {
	return &Collector{
		size: prometheus.NewDesc("shmcast_region_size",
			"Populated slots in the region.", regionLabels, nil),
		capacity: prometheus.NewDesc("shmcast_region_capacity",
			"Fixed slot capacity of the region.", regionLabels, nil),
		changeVersion: prometheus.NewDesc("shmcast_region_change_version",
			"Coarse change counter of the region.", regionLabels, nil),
		refcount: prometheus.NewDesc("shmcast_region_refcount",
			"Live attach handles across all processes.", regionLabels, nil),
		commits: prometheus.NewDesc("shmcast_commits_total",
			"Produce commits through handles of this process.", regionLabels, nil),
		retries: prometheus.NewDesc("shmcast_consume_retries_total",
			"Consume validation retries through handles of this process.", regionLabels, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.size
	ch <- c.capacity
	ch <- c.changeVersion
	ch <- c.refcount
	ch <- c.commits
	ch <- c.retries
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	// Several handles of one process may share a path and role; their
	// per-handle counters are summed so the label set stays unique.
	type key struct {
		path string
		role Role
	}
	merged := make(map[key]RegionStats)
	for _, s := range Regions() {
		k := key{s.Path, s.Role}
		if prev, ok := merged[k]; ok {
			s.Commits += prev.Commits
			s.ConsumeRetries += prev.ConsumeRetries
		}
		merged[k] = s
	}
	for _, s := range merged {
		labels := []string{s.Path, s.Role.String()}
		ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(s.Size), labels...)
		ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(s.Capacity), labels...)
		ch <- prometheus.MustNewConstMetric(c.changeVersion, prometheus.GaugeValue, float64(s.ChangeVersion), labels...)
		ch <- prometheus.MustNewConstMetric(c.refcount, prometheus.GaugeValue, float64(s.Refcount), labels...)
		ch <- prometheus.MustNewConstMetric(c.commits, prometheus.CounterValue, float64(s.Commits), labels...)
		ch <- prometheus.MustNewConstMetric(c.retries, prometheus.CounterValue, float64(s.ConsumeRetries), labels...)
	}
}
