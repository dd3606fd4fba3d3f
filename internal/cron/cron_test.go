package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeRecovery struct {
	recovered  int
	recoverErr error
	pending    int
	olderThan  time.Duration
	calls      int
}

func (f *fakeRecovery) RecoverStale(_ context.Context, olderThan time.Duration) (int, error) {
	f.calls++
	f.olderThan = olderThan
	return f.recovered, f.recoverErr
}

func (f *fakeRecovery) PendingCount(context.Context) (int, error) {
	return f.pending, nil
}

func TestManualTrigger_Recovery(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	rec := &fakeRecovery{recovered: 2}
	s := NewScheduler(rec, 15*time.Minute, zap.New(core))

	s.ManualTrigger("recovery")

	assert.Equal(t, 1, rec.calls)
	assert.Equal(t, 15*time.Minute, rec.olderThan)
	entries := logs.FilterMessage("recovered stale approvals").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].ContextMap()["recovered"])
}

func TestManualTrigger_RecoveryError(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewScheduler(&fakeRecovery{recoverErr: errors.New("db down")}, time.Minute, zap.New(core))

	s.ManualTrigger("recovery")

	assert.Equal(t, 1, logs.FilterMessage("stale approval recovery failed").Len())
}

func TestManualTrigger_Pending(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewScheduler(&fakeRecovery{pending: 4}, time.Minute, zap.New(core))

	s.ManualTrigger("all")

	entries := logs.FilterMessage("pending account requests").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(4), entries[0].ContextMap()["pending"])
}

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler(&fakeRecovery{}, time.Minute, zap.NewNop())
	require.NoError(t, s.Start())
	assert.Len(t, s.cron.Entries(), 2)
	s.Stop()
}
