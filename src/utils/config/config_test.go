package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	conf := Default()
	require.NotNil(t, conf)

	assert.Equal(t, uint64(500), conf.Observer.BatchSize)
	assert.Equal(t, 100*time.Millisecond, conf.Observer.RateLimitDelay)
	assert.Equal(t, 3, conf.Observer.MaxRetries)
	assert.Equal(t, time.Second, conf.Observer.RetryDelay)
	assert.Equal(t, uint64(1000), conf.Observer.PaginationDefaultBatchSize)
	assert.Equal(t, uint64(10000), conf.Observer.PaginationMaxBatchSize)
	assert.GreaterOrEqual(t, conf.Observer.MaxConcurrentDownloads, 1)
	assert.Equal(t, 10*time.Second, conf.Cas.RequestTimeout)
}

func TestPresets(t *testing.T) {
	observer := Default().Observer

	require.NoError(t, observer.ApplyPreset("conservative"))
	assert.Equal(t, uint64(100), observer.BatchSize)
	assert.Equal(t, 5, observer.MaxConcurrentDownloads)

	require.NoError(t, observer.ApplyPreset("aggressive"))
	assert.Equal(t, uint64(2000), observer.BatchSize)
	assert.Equal(t, 50, observer.MaxConcurrentDownloads)

	require.NoError(t, observer.ApplyPreset("balanced"))
	assert.Equal(t, uint64(500), observer.BatchSize)

	assert.Error(t, observer.ApplyPreset("warp-speed"))
}
