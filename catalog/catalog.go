// Package catalog models the two-level remote listing (collection -> item)
// and the resumable cursor over it.
package catalog

import (
	"context"
	"path"
	"sort"
	"strings"
)

// Collection 远端目录中的一组内容（例如 "day" 文件夹）
type Collection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Item 远端的单个视频文件（例如 "part" 文件）
type Item struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}

// ProgressFunc 下载进度回调，total 未知时为 0
type ProgressFunc func(written, total int64)

// Lister 列出远端目录
type Lister interface {
	ListCollections(ctx context.Context) ([]Collection, error)
	ListItems(ctx context.Context, collectionID string) ([]Item, error)
}

// Source 可以下载条目内容的 Lister
type Source interface {
	Lister
	Download(ctx context.Context, item Item, dest string, progress ProgressFunc) error
}

var videoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".avi":  true,
	".mkv":  true,
	".webm": true,
	".flv":  true,
	".wmv":  true,
	".m4v":  true,
}

// IsVideo 按 mime type 或扩展名判断是否为视频
func IsVideo(item Item) bool {
	if strings.HasPrefix(strings.ToLower(item.MimeType), "video/") {
		return true
	}
	return videoExtensions[strings.ToLower(path.Ext(item.Name))]
}

// SortCollections 按名称升序原地排序
func SortCollections(cols []Collection) {
	sort.SliceStable(cols, func(i, j int) bool { return cols[i].Name < cols[j].Name })
}

// SortItems 按名称升序原地排序
func SortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].Name < items[j].Name })
}

// FilterVideos 过滤掉非视频条目，保持原有顺序
func FilterVideos(items []Item) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if IsVideo(it) {
			out = append(out, it)
		}
	}
	return out
}
