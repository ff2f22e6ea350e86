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
	"strconv"
	"sync/atomic"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// The process-local registry tracks every open handle so that metrics and
// diagnostics can enumerate them. It holds no shared memory of its own and
// has no effect on the cross-process protocol.

type regionInfo struct {
	id      uint64
	path    string
	role    Role
	hdr     *regionHeader
	commits atomic.Uint64 // produce commits through this handle
	retries atomic.Uint64 // consume validation retries through this handle
}

// RegionStats is a point-in-time snapshot of one open handle and its region.
type RegionStats struct {
	Path          string
	Role          Role
	Capacity      uint64
	Size          uint64
	ChangeVersion uint64
	Refcount      uint64
	ProducerPID   uint32
	// Commits and ConsumeRetries are process-local to this handle.
	Commits        uint64
	ConsumeRetries uint64
}

var (
	openRegions  = cmap.New[*regionInfo]()
	nextRegionID atomic.Uint64
)

func registerRegion(path string, role Role, hdr *regionHeader) (uint64, *atomic.Uint64, *atomic.Uint64) {
	info := &regionInfo{
		id:   nextRegionID.Add(1),
		path: path,
		role: role,
		hdr:  hdr,
	}
	openRegions.Set(strconv.FormatUint(info.id, 10), info)
	return info.id, &info.commits, &info.retries
}

func unregisterRegion(id uint64) {
	openRegions.Remove(strconv.FormatUint(id, 10))
}

// Regions returns stats for every handle currently open in this process.
func Regions() []RegionStats {
	stats := make([]RegionStats, 0, openRegions.Count())
	for _, info := range openRegions.Items() {
		stats = append(stats, RegionStats{
			Path:           info.path,
			Role:           info.role,
			Capacity:       info.hdr.capacity,
			Size:           info.hdr.size.Load(),
			ChangeVersion:  info.hdr.changeVersion.Load(),
			Refcount:       info.hdr.refcount.Load(),
			ProducerPID:    info.hdr.producerPID.Load(),
			Commits:        info.commits.Load(),
			ConsumeRetries: info.retries.Load(),
		})
	}
	return stats
}
