package main

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/xpzouying/reels-autopost/configs"
	"github.com/xpzouying/reels-autopost/credentials"
	"github.com/xpzouying/reels-autopost/gdrive"
	"github.com/xpzouying/reels-autopost/instagram"
	"github.com/xpzouying/reels-autopost/media"
	"github.com/xpzouying/reels-autopost/metrics"
	"github.com/xpzouying/reels-autopost/planner"
	"github.com/xpzouying/reels-autopost/poster"
	"github.com/xpzouying/reels-autopost/state"
)

// ErrBusy 已有发布尝试在运行
var ErrBusy = errors.New("an attempt is already running")

// attemptRunner runs one posting attempt.
type attemptRunner interface {
	Run(ctx context.Context, opts poster.RunOptions) *poster.Report
}

// PosterService 串行化发布尝试，并提供状态查询
type PosterService struct {
	cfg     configs.Config
	store   *state.FileStore
	metrics *metrics.Metrics
	runner  attemptRunner

	// mu is held for the whole attempt
	mu sync.Mutex
}

// NewPosterService 初始化 Drive、Instagram 和 ffmpeg 依赖
// 这里的错误都属于启动错误，不会执行发布
func NewPosterService(ctx context.Context, cfg configs.Config, m *metrics.Metrics) (*PosterService, error) {
	if err := cfg.RequireRemote(); err != nil {
		return nil, err
	}

	ff := media.New(cfg.FFmpegPath, cfg.FFprobePath)
	if err := ff.CheckTools(); err != nil {
		return nil, &configs.ConfigError{Field: "ffmpeg_path", Reason: err.Error()}
	}

	driveJSON, err := credentials.Drive(cfg.DriveCredentialsFile).Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load drive credentials")
	}
	drive, err := gdrive.NewClient(ctx, driveJSON, cfg.DriveFolderID)
	if err != nil {
		return nil, err
	}

	token, err := credentials.LoadString(credentials.Token(cfg.InstagramTokenFile))
	if err != nil {
		return nil, errors.Wrap(err, "failed to load instagram access token")
	}
	ig, err := instagram.NewClient(instagram.Config{
		AccessToken:    token,
		UserID:         cfg.InstagramUserID,
		MediaType:      cfg.MediaType,
		GraphURL:       cfg.GraphURL,
		UploadURL:      cfg.UploadURL,
		MaxUploadBytes: cfg.MaxUploadBytes(),
	})
	if err != nil {
		return nil, err
	}

	store := state.NewFileStore(cfg.StatePath, cfg.HistoryLimit)

	deps := poster.Deps{
		Catalog:   drive,
		Media:     ff,
		Publisher: ig,
		Store:     store,
		Metrics:   m,
	}
	if cfg.WebhookURL != "" {
		sender, err := NewWebhookSender(cfg.WebhookURL)
		if err != nil {
			return nil, &configs.ConfigError{Field: "webhook_url", Reason: err.Error()}
		}
		deps.Notifier = sender
	}

	p, err := poster.New(cfg, deps)
	if err != nil {
		return nil, err
	}
	return newPosterService(cfg, store, m, p), nil
}

func newPosterService(cfg configs.Config, store *state.FileStore, m *metrics.Metrics, runner attemptRunner) *PosterService {
	return &PosterService{cfg: cfg, store: store, metrics: m, runner: runner}
}

// RunAttempt 执行一次发布尝试，已有尝试在运行时返回 ErrBusy
func (s *PosterService) RunAttempt(ctx context.Context, opts poster.RunOptions) (*poster.Report, error) {
	if !s.mu.TryLock() {
		return nil, ErrBusy
	}
	defer s.mu.Unlock()

	report := s.runner.Run(ctx, opts)
	logrus.WithField("attempt", report.AttemptID).Infof("attempt finished: %s %s", report.Outcome, report.Reason)
	return report, nil
}

// State 获取发布状态
func (s *PosterService) State() *state.PostingState {
	return s.store.Load()
}

// Plan 按当前配置计算分段计划
func (s *PosterService) Plan(duration float64) (*planner.Plan, error) {
	return planner.Compute(duration, s.cfg.MaxSegmentSeconds, s.cfg.SpeedFactor)
}

// Metrics 返回 /metrics 使用的指标
func (s *PosterService) Metrics() *metrics.Metrics {
	return s.metrics
}
