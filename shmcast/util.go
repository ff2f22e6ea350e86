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
	"os"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
)

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// canCreateOnDevShm reports whether a region of the given size fits on
// /dev/shm. Paths outside /dev/shm and non-Linux systems always pass; the
// size is the apparent (sparse) size, so a huge lazily-committed region may
// still be rejected here before a confusing SIGBUS later.
func canCreateOnDevShm(size uint64, path string) bool {
	if runtime.GOOS != "linux" || !strings.HasPrefix(path, "/dev/shm") {
		return true
	}
	stat, err := disk.Usage("/dev/shm")
	if err != nil {
		internalLogger.warnf("canCreateOnDevShm stat /dev/shm failed: %v", err)
		return true
	}
	return stat.Free >= size
}

func isPowerOfTwo(n uint64) bool {
	return n > 0 && n&(n-1) == 0
}

// alignUp rounds n up to the next multiple of align. align must be a power
// of two.
func alignUp(n, align uint64) uint64 {
	return (n + align - 1) &^ (align - 1)
}
