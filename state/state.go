// Package state persists the posting progress between invocations.
package state

import (
	"sort"
	"time"
)

// SchemaVersion 状态文件格式版本
const SchemaVersion = 1

// DefaultHistoryLimit bounds History and FailureHistory when no limit is configured.
const DefaultHistoryLimit = 50

// 历史记录中的条目类型
const (
	KindSuccess = "success"
	KindFailed  = "failed"
	KindSkipped = "skipped"
)

// HistoryEntry 单次尝试的记录
type HistoryEntry struct {
	AttemptID  string    `json:"attempt_id,omitempty"`
	ItemID     string    `json:"id"`
	Name       string    `json:"name"`
	Collection string    `json:"collection,omitempty"`
	Ordinal    int       `json:"ordinal,omitempty"`
	Kind       string    `json:"type"`
	Reason     string    `json:"reason,omitempty"`
	Published  int       `json:"published,omitempty"`
	Segments   int       `json:"segments,omitempty"`
	At         time.Time `json:"date"`
}

// PostingState 持久化的发布进度
type PostingState struct {
	Version int `json:"version"`

	CursorCollection     string   `json:"cursor_collection"`
	CursorItem           int      `json:"cursor_item"`
	CompletedCollections []string `json:"completed_collections"`
	Cycle                int      `json:"cycle"`

	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	LastErrorAt   *time.Time `json:"last_error_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`

	ConsecutiveErrors int      `json:"consecutive_errors"`
	TotalPosts        int      `json:"total_posts"`
	ProcessedItemIDs  []string `json:"processed_item_ids"`

	History        []HistoryEntry `json:"history"`
	FailureHistory []HistoryEntry `json:"failure_history"`
}

// Default 磁盘上没有可用状态时使用的默认值
func Default() *PostingState {
	return &PostingState{
		Version:              SchemaVersion,
		CursorItem:           1,
		CompletedCollections: []string{},
		ProcessedItemIDs:     []string{},
		History:              []HistoryEntry{},
		FailureHistory:       []HistoryEntry{},
	}
}

// Clone returns a deep copy.
func (s *PostingState) Clone() *PostingState {
	c := *s
	c.CompletedCollections = append([]string{}, s.CompletedCollections...)
	c.ProcessedItemIDs = append([]string{}, s.ProcessedItemIDs...)
	c.History = append([]HistoryEntry{}, s.History...)
	c.FailureHistory = append([]HistoryEntry{}, s.FailureHistory...)
	c.LastSuccessAt = cloneTime(s.LastSuccessAt)
	c.LastAttemptAt = cloneTime(s.LastAttemptAt)
	c.LastErrorAt = cloneTime(s.LastErrorAt)
	return &c
}

// IsProcessed 当前轮次是否已经发布过 itemID
func (s *PostingState) IsProcessed(itemID string) bool {
	for _, id := range s.ProcessedItemIDs {
		if id == itemID {
			return true
		}
	}
	return false
}

// MarkProcessed adds itemID to the processed set.
func (s *PostingState) MarkProcessed(itemID string) {
	if itemID == "" || s.IsProcessed(itemID) {
		return
	}
	s.ProcessedItemIDs = append(s.ProcessedItemIDs, itemID)
}

// ResetCycle 走完整个目录后清空本轮的所有标记
func (s *PostingState) ResetCycle() {
	s.CompletedCollections = []string{}
	s.ProcessedItemIDs = []string{}
	s.Cycle++
}

// RecordSuccess 追加到 History，超过 limit 时丢弃最旧的记录
func (s *PostingState) RecordSuccess(e HistoryEntry, limit int) {
	s.History = appendBounded(s.History, e, limit)
}

// RecordFailure 追加到 FailureHistory，超过 limit 时丢弃最旧的记录
func (s *PostingState) RecordFailure(e HistoryEntry, limit int) {
	s.FailureHistory = appendBounded(s.FailureHistory, e, limit)
}

// Truncate enforces limit on both history lists.
func (s *PostingState) Truncate(limit int) {
	s.History = keepLast(s.History, limit)
	s.FailureHistory = keepLast(s.FailureHistory, limit)
}

// ErrorBudgetExhausted 连续错误是否已达上限
func (s *PostingState) ErrorBudgetExhausted(maxConsecutive int) bool {
	return maxConsecutive > 0 && s.ConsecutiveErrors >= maxConsecutive
}

// RanOn 上次成功运行是否与 now 在 loc 时区下为同一天
func (s *PostingState) RanOn(now time.Time, loc *time.Location) bool {
	if s.LastSuccessAt == nil {
		return false
	}
	if loc == nil {
		loc = time.UTC
	}
	y1, m1, d1 := s.LastSuccessAt.In(loc).Date()
	y2, m2, d2 := now.In(loc).Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// normalize fills zero values left by older or partial records.
func (s *PostingState) normalize(limit int) {
	s.Version = SchemaVersion
	if s.CursorItem < 1 {
		s.CursorItem = 1
	}
	if s.ConsecutiveErrors < 0 {
		s.ConsecutiveErrors = 0
	}
	if s.TotalPosts < 0 {
		s.TotalPosts = 0
	}
	if s.CompletedCollections == nil {
		s.CompletedCollections = []string{}
	}
	sort.Strings(s.CompletedCollections)
	if s.ProcessedItemIDs == nil {
		s.ProcessedItemIDs = []string{}
	}
	if s.History == nil {
		s.History = []HistoryEntry{}
	}
	if s.FailureHistory == nil {
		s.FailureHistory = []HistoryEntry{}
	}
	s.Truncate(limit)
}

func appendBounded(list []HistoryEntry, e HistoryEntry, limit int) []HistoryEntry {
	return keepLast(append(list, e), limit)
}

func keepLast(list []HistoryEntry, limit int) []HistoryEntry {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if len(list) <= limit {
		return list
	}
	return append([]HistoryEntry{}, list[len(list)-limit:]...)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
