// Package adapter integrates shmcast regions with external monitoring
// systems: healthcheck endpoints and OpenTelemetry instrumentation.
package adapter

import (
	"fmt"
	"os"

	"github.com/heptiolabs/healthcheck"
	"github.com/shirou/gopsutil/v3/process"
)

// PIDSource reports the producer pid recorded in a region header.
// shmcast.Consumer and shmcast.Container satisfy it.
type PIDSource interface {
	ProducerPID() uint32
}

// RegionCheck is a healthcheck.Check that fails when the region's backing
// store is gone.
func RegionCheck(path string) healthcheck.Check {
	return func() error {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("region %s unavailable: %w", path, err)
		}
		return nil
	}
}

// ProducerCheck is a healthcheck.Check that fails while no live producer is
// attached to the watched region. A recorded pid whose process has exited
// counts as no producer.
func ProducerCheck(src PIDSource) healthcheck.Check {
	return func() error {
		pid := src.ProducerPID()
		if pid == 0 {
			return fmt.Errorf("no producer attached")
		}
		alive, err := process.PidExists(int32(pid))
		if err != nil {
			return fmt.Errorf("check producer pid %d: %w", pid, err)
		}
		if !alive {
			return fmt.Errorf("producer pid %d is gone", pid)
		}
		return nil
	}
}

// NewConsumerHealthHandler wires the region and producer checks of one
// consumer into a healthcheck handler: region presence as liveness,
// producer presence as readiness.
func NewConsumerHealthHandler(path string, src PIDSource) healthcheck.Handler {
	h := healthcheck.NewHandler()
	h.AddLivenessCheck("region-present", RegionCheck(path))
	h.AddReadinessCheck("producer-attached", ProducerCheck(src))
	return h
}
