// Package planner splits a source video into equal segments that fit the
// output length limit once sped up.
package planner

import (
	"math"

	"github.com/pkg/errors"
)

// ErrInvalidInput 输入参数非法（非正数、NaN 或无穷大）
var ErrInvalidInput = errors.New("invalid planner input")

// Segment 源视频中的一段，单位为源视频秒数
type Segment struct {
	Index    int     `json:"index"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// End returns the exclusive end offset of the segment.
func (s Segment) End() float64 {
	return s.Start + s.Duration
}

// OutputDuration returns how long the segment plays after speeding it up.
func (s Segment) OutputDuration(speed float64) float64 {
	return s.Duration / speed
}

// Plan 按顺序排列的分段，恰好覆盖整个源视频一次
type Plan struct {
	SourceDuration  float64   `json:"source_duration"`
	MaxOutput       float64   `json:"max_output"`
	Speed           float64   `json:"speed"`
	MaxSourceSpan   float64   `json:"max_source_span"`
	SegmentDuration float64   `json:"segment_duration"`
	Segments        []Segment `json:"segments"`
}

// Count returns the number of segments.
func (p *Plan) Count() int {
	return len(p.Segments)
}

// OutputDuration returns the per-segment playback length after speed-up.
func (p *Plan) OutputDuration() float64 {
	return p.SegmentDuration / p.Speed
}

// Compute 将 sourceDuration 等分为 ceil(source / (maxOutput*speed)) 段。
//
// 例如 400 秒、单段上限 212.5 秒时得到两段 200 秒，而不是 212.5 + 187.5。
func Compute(sourceDuration, maxOutput, speed float64) (*Plan, error) {
	if !positive(sourceDuration) {
		return nil, errors.Wrapf(ErrInvalidInput, "source duration %v", sourceDuration)
	}
	if !positive(maxOutput) {
		return nil, errors.Wrapf(ErrInvalidInput, "max output duration %v", maxOutput)
	}
	if !positive(speed) {
		return nil, errors.Wrapf(ErrInvalidInput, "speed factor %v", speed)
	}

	maxSpan := maxOutput * speed
	count := int(math.Ceil(sourceDuration / maxSpan))
	if count < 1 {
		count = 1
	}
	segDuration := sourceDuration / float64(count)

	segments := make([]Segment, count)
	for i := range segments {
		segments[i] = Segment{
			Index:    i,
			Start:    float64(i) * segDuration,
			Duration: segDuration,
		}
	}
	// 最后一段吸收浮点误差，保证总和严格等于源时长
	last := &segments[count-1]
	last.Duration = sourceDuration - last.Start

	return &Plan{
		SourceDuration:  sourceDuration,
		MaxOutput:       maxOutput,
		Speed:           speed,
		MaxSourceSpan:   maxSpan,
		SegmentDuration: segDuration,
		Segments:        segments,
	}, nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
