package adapter

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srediag/shmcast/shmcast"
)

type tick struct {
	V uint64
}

func TestRegionCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region.shm")

	check := RegionCheck(path)
	assert.Error(t, check(), "missing region must fail the check")

	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	assert.NoError(t, check())
}

type stubPIDSource uint32

func (s stubPIDSource) ProducerPID() uint32 { return uint32(s) }

func TestProducerCheck(t *testing.T) {
	assert.Error(t, ProducerCheck(stubPIDSource(0))(), "pid 0 means no producer")

	// Our own pid is certainly alive.
	assert.NoError(t, ProducerCheck(stubPIDSource(os.Getpid()))())
}

func TestProducerCheckLiveRegion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region.shm")

	prod, err := shmcast.CreateProducer[tick](path, 4)
	require.NoError(t, err)

	cons, err := shmcast.AttachConsumer[tick](path)
	require.NoError(t, err)
	defer cons.Close()

	check := ProducerCheck(cons)
	assert.NoError(t, check())

	require.NoError(t, prod.Close())
	assert.Error(t, check(), "released producer claim must fail readiness")
}

func TestNewConsumerHealthHandler(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region.shm")

	prod, err := shmcast.CreateProducer[tick](path, 4)
	require.NoError(t, err)
	defer prod.Close()

	cons, err := shmcast.AttachConsumer[tick](path)
	require.NoError(t, err)
	defer cons.Close()

	h := NewConsumerHealthHandler(path, cons)

	rec := httptest.NewRecorder()
	h.LiveEndpoint(rec, httptest.NewRequest("GET", "/live", nil))
	assert.Equal(t, 200, rec.Code)

	rec = httptest.NewRecorder()
	h.ReadyEndpoint(rec, httptest.NewRequest("GET", "/ready", nil))
	assert.Equal(t, 200, rec.Code)
}
