package poster

import (
	"fmt"
	"time"
)

// Outcome 尝试结果
type Outcome string

const (
	OutcomeAlreadyRanToday Outcome = "already_ran_today"
	OutcomeStopped         Outcome = "stopped"
	OutcomeSuccess         Outcome = "success"
	OutcomeFailure         Outcome = "failure"
	// OutcomeInterrupted 尝试被取消，状态保持上次保存的样子，下次重试同一条目
	OutcomeInterrupted Outcome = "interrupted"
)

// Reason 失败原因
type Reason string

const (
	ReasonNoContent        Reason = "NoContentAvailable"
	ReasonFetchFailed      Reason = "FetchFailed"
	ReasonUnreadableMedia  Reason = "UnreadableMedia"
	ReasonSourceTooLong    Reason = "SourceTooLong"
	ReasonProductionFailed Reason = "ProductionFailed"
	ReasonPublishFailed    Reason = "PublishFailed"
)

// AttemptError 导致本次尝试失败的错误
type AttemptError struct {
	Reason Reason
	Err    error
}

func (e *AttemptError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *AttemptError) Unwrap() error { return e.Err }

// Cause lets errors.Cause reach the underlying error.
func (e *AttemptError) Cause() error { return e.Err }

func fail(reason Reason, err error) *AttemptError {
	return &AttemptError{Reason: reason, Err: err}
}

// Segment states in a report.
const (
	SegmentPublished = "published"
	SegmentFailed    = "failed"
	SegmentDropped   = "dropped"
	SegmentPending   = "not_attempted"
)

// SegmentReport 单个分段的处理结果
type SegmentReport struct {
	Index          int     `json:"index"`
	Start          float64 `json:"start"`
	Duration       float64 `json:"duration"`
	OutputDuration float64 `json:"output_duration,omitempty"`
	Status         string  `json:"status"`
	MediaID        string  `json:"media_id,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// Report 一次尝试的汇总，返回给调用方并发送到 webhook
type Report struct {
	AttemptID string  `json:"attempt_id"`
	Outcome   Outcome `json:"outcome"`
	Reason    Reason  `json:"reason,omitempty"`
	Error     string  `json:"error,omitempty"`
	Forced    bool    `json:"forced,omitempty"`

	Collection string `json:"collection,omitempty"`
	Item       string `json:"item,omitempty"`
	ItemID     string `json:"item_id,omitempty"`
	Ordinal    int    `json:"ordinal,omitempty"`
	Total      int    `json:"total,omitempty"`
	Degraded   bool   `json:"degraded,omitempty"`
	CycleReset bool   `json:"cycle_reset,omitempty"`

	SourceDuration float64         `json:"source_duration,omitempty"`
	Segments       []SegmentReport `json:"segments,omitempty"`
	Published      int             `json:"published"`

	ConsecutiveErrors int  `json:"consecutive_errors"`
	TotalPosts        int  `json:"total_posts"`
	Persisted         bool `json:"persisted"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// MediaIDs 按顺序返回已发布分段的媒体 ID
func (r *Report) MediaIDs() []string {
	var ids []string
	for _, s := range r.Segments {
		if s.MediaID != "" {
			ids = append(ids, s.MediaID)
		}
	}
	return ids
}

func (r *Report) count(status string) int {
	n := 0
	for _, s := range r.Segments {
		if s.Status == status {
			n++
		}
	}
	return n
}
