// Package poster runs one posting attempt end to end: locate the next item,
// download it, split and speed it up, publish the segments and persist the
// outcome.
package poster

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/xpzouying/reels-autopost/catalog"
	"github.com/xpzouying/reels-autopost/configs"
	"github.com/xpzouying/reels-autopost/instagram"
	"github.com/xpzouying/reels-autopost/media"
	"github.com/xpzouying/reels-autopost/metrics"
	"github.com/xpzouying/reels-autopost/pkg/caption"
	"github.com/xpzouying/reels-autopost/state"
)

// Catalog 列出并下载远端视频
type Catalog interface {
	catalog.Source
}

// Prober measures media files.
type Prober interface {
	Probe(ctx context.Context, path string) (*media.Info, error)
}

// Transformer renders one segment.
type Transformer interface {
	Transform(ctx context.Context, job media.Job) error
}

// Media 视频探测和渲染
type Media interface {
	Prober
	Transformer
}

// Publisher 上传并发布视频
type Publisher interface {
	CreateUploadSession(ctx context.Context, path, caption, mediaType string) (string, error)
	PollStatus(ctx context.Context, sessionID string) (instagram.SessionStatus, error)
	Publish(ctx context.Context, sessionID string) (string, error)
}

// Store 发布状态存储
type Store interface {
	Load() *state.PostingState
	Save(st *state.PostingState) error
}

// Notifier 接收尝试结果，通知失败不影响本次尝试
type Notifier interface {
	Notify(ctx context.Context, report *Report)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Deps Poster 的依赖，Metrics、Notifier、Clock 和 Captions 可以为空
type Deps struct {
	Catalog   Catalog
	Media     Media
	Publisher Publisher
	Store     Store
	Captions  *caption.Renderer
	Metrics   *metrics.Metrics
	Notifier  Notifier
	Clock     Clock
	// Timer drives retry backoff, status polling and the delay between posts.
	Timer retry.Timer
}

// Poster 编排一次完整的发布尝试
type Poster struct {
	cfg       configs.Config
	catalog   Catalog
	cursor    *catalog.Cursor
	media     Media
	publisher Publisher
	store     Store
	captions  *caption.Renderer
	metrics   *metrics.Metrics
	notifier  Notifier
	clock     Clock
	retry     RetryPolicy
	loc       *time.Location
}

// New 创建 Poster
func New(cfg configs.Config, deps Deps) (*Poster, error) {
	if deps.Catalog == nil || deps.Media == nil || deps.Publisher == nil || deps.Store == nil {
		return nil, errors.New("catalog, media, publisher and store are required")
	}

	captions := deps.Captions
	if captions == nil {
		var err error
		captions, err = caption.New(cfg.CaptionTemplate, cfg.Hashtags)
		if err != nil {
			return nil, err
		}
	}

	clock := deps.Clock
	if clock == nil {
		clock = systemClock{}
	}

	return &Poster{
		cfg:       cfg,
		catalog:   deps.Catalog,
		cursor:    catalog.NewCursor(deps.Catalog, catalog.NewOrdinalParser(cfg.OrdinalMarker), cfg.WrapCatalog),
		media:     deps.Media,
		publisher: deps.Publisher,
		store:     deps.Store,
		captions:  captions,
		metrics:   deps.Metrics,
		notifier:  deps.Notifier,
		clock:     clock,
		retry: RetryPolicy{
			Attempts: uint(cfg.PublishAttempts),
			Backoff:  cfg.PublishBackoff,
			Timer:    deps.Timer,
		},
		loc: cfg.Location(),
	}, nil
}

// RunOptions 强制指定位置，Collection 为空时使用保存的游标
type RunOptions struct {
	Collection string
	Ordinal    int
}

func (o RunOptions) forced() bool {
	return o.Collection != ""
}

func logFields(log *logrus.Entry, sel *catalog.Selection) *logrus.Entry {
	return log.WithFields(logrus.Fields{
		"collection": sel.Collection.Name,
		"item":       sel.Item.Name,
		"part":       sel.Ordinal,
	})
}
