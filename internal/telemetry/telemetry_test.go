package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAverage_EmptyReturnsSentinel(t *testing.T) {
	assert.Equal(t, float64(errorSentinel), average(nil))
}

func TestAverage_ComputesMean(t *testing.T) {
	assert.Equal(t, 20.0, average([]float64{10, 20, 30}))
}

func TestMaxOf_ReturnsLargest(t *testing.T) {
	assert.Equal(t, 9.0, maxOf([]float64{3, 9, 1}))
}

func TestActiveAverage_OnlyCountsAboveThreshold(t *testing.T) {
	values := []float64{1, 2, 10, 20}
	// only 10 and 20 are >= 5
	want := (10.0 + 20.0) / 2
	assert.Equal(t, want, activeAverage(values, activeNodeCPUThreshold))
}

func TestActiveAverage_NoActiveNodes_ReturnsZero(t *testing.T) {
	values := []float64{1, 2, 3}
	assert.Equal(t, 0.0, activeAverage(values, activeNodeCPUThreshold))
}
