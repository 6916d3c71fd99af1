package worker

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attachkit/linkcore/internal/storage/memory"
	"github.com/attachkit/linkcore/pkg/core"
)

func newTestManager(t *testing.T) (*Manager, *memory.Backend) {
	t.Helper()
	backend := memory.New()
	require.NoError(t, backend.Init())
	require.NoError(t, backend.StartSession("test", ""))
	return NewManager(backend, 10*time.Millisecond, zerolog.Nop()), backend
}

func TestWorker_EnqueueDoesNotWrite(t *testing.T) {
	m, backend := newTestManager(t)

	require.NoError(t, m.RecordLinkCreated(core.LinkCreated{Source: 1, Target: 2}))
	require.NoError(t, m.RecordMotorSample(core.MotorSample{Part: 1}))

	assert.Equal(t, 2, m.Queues().Pending())
	assert.Equal(t, 0, backend.LinkEventCount())
	assert.Equal(t, 0, backend.MotorSampleCount())
}

func TestWorker_FlushDrainsAllQueues(t *testing.T) {
	m, backend := newTestManager(t)

	require.NoError(t, m.RecordLinkCreated(core.LinkCreated{Source: 1, Target: 2}))
	require.NoError(t, m.RecordLinkBroken(core.LinkBroken{Source: 1, Target: 2, Reason: core.BreakReasonAPI}))
	require.NoError(t, m.RecordMotorSample(core.MotorSample{Part: 1}))

	m.Flush()
	assert.Equal(t, 0, m.Queues().Pending())
	assert.Equal(t, 2, backend.LinkEventCount())
	assert.Equal(t, 1, backend.MotorSampleCount())
}

func TestWorker_StartFlushesPeriodically(t *testing.T) {
	m, backend := newTestManager(t)

	m.Start()
	defer m.Stop()
	require.True(t, m.IsRunning())

	require.NoError(t, m.RecordLinkCreated(core.LinkCreated{Source: 1, Target: 2}))

	assert.Eventually(t, func() bool {
		return backend.LinkEventCount() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestWorker_StopDrainsRemainder(t *testing.T) {
	m, backend := newTestManager(t)

	m.Start()
	require.NoError(t, m.RecordMotorSample(core.MotorSample{Part: 1}))
	m.Stop()

	assert.False(t, m.IsRunning())
	assert.Equal(t, 1, backend.MotorSampleCount())
	assert.Equal(t, 0, m.Queues().Pending())
}

func TestWorker_DoubleStartIsNoop(t *testing.T) {
	m, _ := newTestManager(t)
	m.Start()
	m.Start()
	m.Stop()
	assert.False(t, m.IsRunning())
}

func TestWorker_FlushRecordsDuration(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.RecordLinkCreated(core.LinkCreated{}))
	m.Flush()
	assert.Greater(t, m.LastFlushDuration(), time.Duration(0))
}
