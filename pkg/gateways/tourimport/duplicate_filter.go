package tourimport

import (
	"strconv"
	"sync"

	bloomFilter "github.com/bits-and-blooms/bloom/v3"
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/utils"
	"github.com/pkg/errors"
)

const (
	DUPLICATION_FILTER            = "0"
	FILTER_CAPACITY               = "1000000"
	DUPLICATION_PROBABILITY       = "0.01"
	RESET_FILTER_USAGE_PERCENTAGE = "0.75"
)

// duplicateFilter remembers, per device, the record keys persisted by this
// process so repeated imports of the same data skip the store.
type duplicateFilter struct {
	mu                           sync.Mutex
	enabled                      bool
	filters                      map[string]*bloomFilter.BloomFilter
	filterCapacity               uint
	duplicationProbability       float64
	maximumPercentageFilterUsage float64
}

// newDuplicateFilterFromEnvironment reads DUPLICATION_FILTER, FILTER_CAPACITY,
// DUPLICATION_PROBABILITY and RESET_FILTER_USAGE_PERCENTAGE.
func newDuplicateFilterFromEnvironment() (*duplicateFilter, error) {
	maximumUsage, err := strconv.ParseFloat(utils.GetValueFromEnvironmentVariable("RESET_FILTER_USAGE_PERCENTAGE", RESET_FILTER_USAGE_PERCENTAGE), 64)
	if err != nil {
		return nil, errors.Wrap(err, "RESET_FILTER_USAGE_PERCENTAGE")
	}
	capacity, err := strconv.ParseUint(utils.GetValueFromEnvironmentVariable("FILTER_CAPACITY", FILTER_CAPACITY), 10, 0)
	if err != nil {
		return nil, errors.Wrap(err, "FILTER_CAPACITY")
	}
	probability, err := strconv.ParseFloat(utils.GetValueFromEnvironmentVariable("DUPLICATION_PROBABILITY", DUPLICATION_PROBABILITY), 64)
	if err != nil {
		return nil, errors.Wrap(err, "DUPLICATION_PROBABILITY")
	}
	enabled := utils.GetValueFromEnvironmentVariable("DUPLICATION_FILTER", DUPLICATION_FILTER) == "1"
	return newDuplicateFilter(enabled, uint(capacity), probability, maximumUsage), nil
}

func newDuplicateFilter(enabled bool, capacity uint, probability, maximumUsage float64) *duplicateFilter {
	return &duplicateFilter{
		enabled:                      enabled,
		filters:                      map[string]*bloomFilter.BloomFilter{},
		filterCapacity:               capacity,
		duplicationProbability:       probability,
		maximumPercentageFilterUsage: maximumUsage,
	}
}

func (f *duplicateFilter) isDuplicated(deviceID, key string) bool {
	if !f.enabled {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	filter, ok := f.filters[deviceID]
	return ok && filter.TestString(key)
}

func (f *duplicateFilter) add(deviceID, key string) {
	if !f.enabled {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	filter, ok := f.filters[deviceID]
	if !ok {
		filter = bloomFilter.NewWithEstimates(f.filterCapacity, f.duplicationProbability)
		f.filters[deviceID] = filter
	}
	f.resetWhenFull(filter)
	filter.AddString(key)
}

func (f *duplicateFilter) resetWhenFull(filter *bloomFilter.BloomFilter) {
	usage := float64(filter.ApproximatedSize()) / float64(f.filterCapacity)
	if usage >= f.maximumPercentageFilterUsage {
		filter.ClearAll()
	}
}
