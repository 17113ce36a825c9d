package planner

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const epsilon = 1e-9

func TestCompute(t *testing.T) {
	tests := []struct {
		name      string
		source    float64
		maxOutput float64
		speed     float64
		wantCount int
		wantSeg   float64
	}{
		{name: "400s at 1.25x", source: 400, maxOutput: 170, speed: 1.25, wantCount: 2, wantSeg: 200},
		{name: "fits in one segment", source: 100, maxOutput: 170, speed: 1.25, wantCount: 1, wantSeg: 100},
		{name: "exactly one span", source: 212.5, maxOutput: 170, speed: 1.25, wantCount: 1, wantSeg: 212.5},
		{name: "just over one span", source: 212.6, maxOutput: 170, speed: 1.25, wantCount: 2, wantSeg: 106.3},
		{name: "hour long", source: 3600, maxOutput: 170, speed: 1.25, wantCount: 17, wantSeg: 3600.0 / 17},
		{name: "no speed-up", source: 500, maxOutput: 100, speed: 1, wantCount: 5, wantSeg: 100},
		{name: "slow down", source: 90, maxOutput: 60, speed: 0.5, wantCount: 3, wantSeg: 30},
		{name: "tiny source", source: 0.01, maxOutput: 170, speed: 1.25, wantCount: 1, wantSeg: 0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := Compute(tt.source, tt.maxOutput, tt.speed)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCount, plan.Count())
			assert.InDelta(t, tt.wantSeg, plan.SegmentDuration, epsilon)
			assert.InDelta(t, tt.maxOutput*tt.speed, plan.MaxSourceSpan, epsilon)
		})
	}
}

func TestCompute_ScenarioOutputDuration(t *testing.T) {
	plan, err := Compute(400, 170, 1.25)
	require.NoError(t, err)

	require.Len(t, plan.Segments, 2)
	assert.InDelta(t, 0, plan.Segments[0].Start, epsilon)
	assert.InDelta(t, 200, plan.Segments[1].Start, epsilon)
	assert.InDelta(t, 400, plan.Segments[1].End(), epsilon)
	for _, seg := range plan.Segments {
		assert.InDelta(t, 160, seg.OutputDuration(1.25), epsilon)
	}
	assert.InDelta(t, 160, plan.OutputDuration(), epsilon)
}

func TestCompute_Invariants(t *testing.T) {
	speeds := []float64{0.5, 1, 1.1, 1.25, 1.5, 2, 3.7}
	maxOutputs := []float64{15, 60, 90, 170, 179.5}

	for _, speed := range speeds {
		for _, maxOutput := range maxOutputs {
			for source := 0.5; source < 5000; source = source*1.37 + 3.3 {
				plan, err := Compute(source, maxOutput, speed)
				require.NoError(t, err)

				want := int(math.Max(1, math.Ceil(source/(maxOutput*speed))))
				require.Equal(t, want, plan.Count(), "source=%v max=%v speed=%v", source, maxOutput, speed)

				var sum float64
				for i, seg := range plan.Segments {
					require.Equal(t, i, seg.Index)
					if i > 0 {
						require.InDelta(t, plan.Segments[i-1].End(), seg.Start, epsilon)
					}
					require.LessOrEqual(t, seg.OutputDuration(speed), maxOutput+epsilon)
					sum += seg.Duration
				}
				require.InDelta(t, source, sum, epsilon*source)
			}
		}
	}
}

func TestCompute_InvalidInput(t *testing.T) {
	tests := []struct {
		name      string
		source    float64
		maxOutput float64
		speed     float64
	}{
		{name: "zero source", source: 0, maxOutput: 170, speed: 1.25},
		{name: "negative source", source: -1, maxOutput: 170, speed: 1.25},
		{name: "zero max output", source: 100, maxOutput: 0, speed: 1.25},
		{name: "zero speed", source: 100, maxOutput: 170, speed: 0},
		{name: "negative speed", source: 100, maxOutput: 170, speed: -2},
		{name: "NaN source", source: math.NaN(), maxOutput: 170, speed: 1.25},
		{name: "infinite source", source: math.Inf(1), maxOutput: 170, speed: 1.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := Compute(tt.source, tt.maxOutput, tt.speed)
			require.ErrorIs(t, err, ErrInvalidInput)
			assert.Nil(t, plan)
		})
	}
}
