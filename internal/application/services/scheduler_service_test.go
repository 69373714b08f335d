package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSchedulerService_ParsesCrons(t *testing.T) {
	svc, err := NewSchedulerService(DefaultSchedulerConfig(), nil, nil, nil, nil, nil, nil, nil, nil)
	require.NoError(t, err)

	now := time.Now()
	assert.True(t, svc.nextPurge.After(now))
	assert.True(t, svc.nextAudit.After(now))
}

func TestNewSchedulerService_RejectsBadCron(t *testing.T) {
	cfg := DefaultSchedulerConfig()
	cfg.PurgeCron = "every day at 3"

	_, err := NewSchedulerService(cfg, nil, nil, nil, nil, nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestSchedulerService_StopIsIdempotent(t *testing.T) {
	svc, err := NewSchedulerService(DefaultSchedulerConfig(), nil, nil, nil, nil, nil, nil, nil, nil)
	require.NoError(t, err)

	go svc.Start()
	time.Sleep(10 * time.Millisecond)

	svc.Stop()
	svc.Stop()
}

func TestSchedulerService_RunDueJobsAdvancesSchedule(t *testing.T) {
	svc, err := NewSchedulerService(DefaultSchedulerConfig(), nil, nil, nil, nil, nil, nil, nil, nil)
	require.NoError(t, err)

	// nothing due yet, nextPurge stays put
	before := svc.nextPurge
	svc.runDueJobs()
	assert.Equal(t, before, svc.nextPurge)
}
