package state

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultPath is where the state file lives when nothing else is configured.
const DefaultPath = "state/posting_state.json"

// PersistenceError 状态写入失败
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("save posting state %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// FileStore 将状态以 JSON 文件保存在本地磁盘
type FileStore struct {
	path         string
	historyLimit int
	mu           sync.Mutex
}

// NewFileStore creates a store at path. historyLimit <= 0 uses DefaultHistoryLimit.
func NewFileStore(path string, historyLimit int) *FileStore {
	if path == "" {
		path = DefaultPath
	}
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &FileStore{path: path, historyLimit: historyLimit}
}

// Path returns the state file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load 读取状态，不会失败。
// 文件不存在时返回默认值；文件损坏时记录日志并返回默认值。
func (s *FileStore) Load() *PostingState {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logrus.Errorf("failed to read posting state %s, starting fresh: %v", s.path, err)
		}
		return Default()
	}

	st, err := decode(data, s.historyLimit)
	if err != nil {
		logrus.Errorf("posting state %s is corrupt, starting fresh: %v", s.path, err)
		return Default()
	}
	return st
}

// Save 原子写入状态，写入前按上限截断历史记录
func (s *FileStore) Save(st *PostingState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st.Version = SchemaVersion
	st.Truncate(s.historyLimit)

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return &PersistenceError{Path: s.path, Err: err}
	}

	w, err := newAtomicWriter(s.path)
	if err != nil {
		return &PersistenceError{Path: s.path, Err: err}
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		w.Abort()
		return &PersistenceError{Path: s.path, Err: errors.Wrap(err, "write")}
	}
	if err := w.Commit(); err != nil {
		return &PersistenceError{Path: s.path, Err: err}
	}

	logrus.Debugf("posting state saved to %s", s.path)
	return nil
}

func decode(data []byte, limit int) (*PostingState, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, errors.Wrap(err, "decode")
	}

	if _, ok := probe["version"]; !ok {
		if _, legacy := probe["current_video_index"]; legacy {
			return migrateLegacy(data, limit)
		}
	}

	st := Default()
	if err := json.Unmarshal(data, st); err != nil {
		return nil, errors.Wrap(err, "decode")
	}
	if st.Version > SchemaVersion {
		logrus.Warnf("posting state has schema version %d, newer than %d", st.Version, SchemaVersion)
	}
	st.normalize(limit)
	return st, nil
}

// legacyState is the layout written by the earlier flat-index poster.
type legacyState struct {
	LastRunDate       *string       `json:"last_run_date"`
	CurrentVideoIndex int           `json:"current_video_index"`
	ProcessedVideos   []legacyEntry `json:"processed_videos"`
	FailedVideos      []legacyEntry `json:"failed_videos"`
	TotalPosts        int           `json:"total_posts"`
	ConsecutiveErrors int           `json:"consecutive_errors"`
	LastError         *string       `json:"last_error"`
}

type legacyEntry struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Date   string `json:"date"`
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// migrateLegacy 转换旧版单索引格式。
// 旧索引无法对应到合集，游标从第一个合集重新开始。
func migrateLegacy(data []byte, limit int) (*PostingState, error) {
	var old legacyState
	if err := json.Unmarshal(data, &old); err != nil {
		return nil, errors.Wrap(err, "decode legacy state")
	}

	st := Default()
	st.TotalPosts = old.TotalPosts
	st.ConsecutiveErrors = old.ConsecutiveErrors

	if old.LastRunDate != nil {
		st.LastAttemptAt = parseLegacyTime(*old.LastRunDate)
	}
	if old.LastError != nil {
		st.LastErrorAt = parseLegacyTime(*old.LastError)
	}

	for _, e := range old.ProcessedVideos {
		entry := e.toEntry(KindSuccess)
		st.History = append(st.History, entry)
		st.MarkProcessed(e.ID)
		if !entry.At.IsZero() && (st.LastSuccessAt == nil || entry.At.After(*st.LastSuccessAt)) {
			at := entry.At
			st.LastSuccessAt = &at
		}
	}
	for _, e := range old.FailedVideos {
		st.FailureHistory = append(st.FailureHistory, e.toEntry(KindFailed))
	}

	logrus.Infof("migrated legacy posting state (index %d, %d posts), cursor restarts at first collection",
		old.CurrentVideoIndex, old.TotalPosts)
	st.normalize(limit)
	return st, nil
}

func (e legacyEntry) toEntry(kind string) HistoryEntry {
	if e.Type != "" {
		kind = e.Type
	}
	entry := HistoryEntry{ItemID: e.ID, Name: e.Name, Kind: kind, Reason: e.Reason}
	if t := parseLegacyTime(e.Date); t != nil {
		entry.At = *t
	}
	return entry
}

var legacyLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// parseLegacyTime reads naive ISO timestamps as local time.
func parseLegacyTime(s string) *time.Time {
	for _, layout := range legacyLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return &t
		}
	}
	return nil
}
