package tourimport

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGivenDisabledFilterThenNothingIsDuplicated(t *testing.T) {
	filter := newDuplicateFilter(false, 100, 0.01, 0.75)
	filter.add("trk-logger", "trk-logger_1")
	assert.False(t, filter.isDuplicated("trk-logger", "trk-logger_1"))
	assert.Empty(t, filter.filters)
}

func TestGivenEnabledFilterThenKeysArePerDevice(t *testing.T) {
	filter := newDuplicateFilter(true, 100, 0.001, 0.75)
	filter.add("trk-logger", "key_1")
	assert.True(t, filter.isDuplicated("trk-logger", "key_1"))
	assert.False(t, filter.isDuplicated("csv-export", "key_1"))
	assert.False(t, filter.isDuplicated("trk-logger", "key_2"))
}

func TestGivenFilterAboveUsageLimitThenItIsCleared(t *testing.T) {
	filter := newDuplicateFilter(true, 100, 0.001, 0.05)
	for i := range 20 {
		filter.add("trk-logger", fmt.Sprintf("key_%d", i))
	}
	assert.False(t, filter.isDuplicated("trk-logger", "key_0"))
	assert.True(t, filter.isDuplicated("trk-logger", "key_19"))
}

func TestGivenEnvironmentThenFilterIsConfigured(t *testing.T) {
	t.Setenv("DUPLICATION_FILTER", "1")
	t.Setenv("FILTER_CAPACITY", "500")
	t.Setenv("DUPLICATION_PROBABILITY", "0.02")
	t.Setenv("RESET_FILTER_USAGE_PERCENTAGE", "0.5")

	filter, err := newDuplicateFilterFromEnvironment()
	require.NoError(t, err)
	assert.True(t, filter.enabled)
	assert.Equal(t, uint(500), filter.filterCapacity)
	assert.Equal(t, 0.02, filter.duplicationProbability)
	assert.Equal(t, 0.5, filter.maximumPercentageFilterUsage)
}

func TestGivenDefaultEnvironmentThenFilterIsDisabled(t *testing.T) {
	filter, err := newDuplicateFilterFromEnvironment()
	require.NoError(t, err)
	assert.False(t, filter.enabled)
	assert.Equal(t, uint(1000000), filter.filterCapacity)
}

func TestGivenMalformedEnvironmentThenError(t *testing.T) {
	for _, name := range []string{"FILTER_CAPACITY", "DUPLICATION_PROBABILITY", "RESET_FILTER_USAGE_PERCENTAGE"} {
		t.Run(name, func(t *testing.T) {
			t.Setenv(name, "lots")
			_, err := newDuplicateFilterFromEnvironment()
			assert.ErrorContains(t, err, name)
		})
	}
}
