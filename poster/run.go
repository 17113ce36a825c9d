package poster

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/xpzouying/reels-autopost/catalog"
	"github.com/xpzouying/reels-autopost/instagram"
	"github.com/xpzouying/reels-autopost/media"
	"github.com/xpzouying/reels-autopost/planner"
	"github.com/xpzouying/reels-autopost/state"
)

var errPending = errors.New("media container still processing")

// Run 执行一次发布尝试，不返回错误：失败记录在 report 中，
// 计入错误次数的失败同时写入状态文件。
//
// 强制运行（设置了 opts.Collection）跳过每日限制和错误上限。
func (p *Poster) Run(ctx context.Context, opts RunOptions) *Report {
	report := &Report{
		AttemptID: uuid.NewString(),
		Forced:    opts.forced(),
		StartedAt: p.clock.Now(),
	}
	log := logrus.WithField("attempt", report.AttemptID)

	st := p.store.Load()
	report.ConsecutiveErrors = st.ConsecutiveErrors
	report.TotalPosts = st.TotalPosts

	if !opts.forced() {
		if p.cfg.PostDaily && st.RanOn(report.StartedAt, p.loc) {
			log.Infof("already posted today (%s), nothing to do", st.LastSuccessAt.In(p.loc).Format("2006-01-02"))
			return p.finish(ctx, report, OutcomeAlreadyRanToday)
		}
		if st.ErrorBudgetExhausted(p.cfg.MaxConsecutiveErrors) {
			log.Errorf("too many consecutive errors (%d/%d), stopping", st.ConsecutiveErrors, p.cfg.MaxConsecutiveErrors)
			return p.finish(ctx, report, OutcomeStopped)
		}
	}

	sel, err := p.locate(ctx, st, opts)
	if err != nil && ctx.Err() != nil {
		return p.interrupted(ctx, report, log, err)
	}
	if err != nil {
		log.WithError(err).Error("no content available")
		p.recordFailure(st, report, nil, fail(ReasonNoContent, err))
		p.persist(st, report, log)
		return p.finish(ctx, report, OutcomeFailure)
	}

	log = logFields(log, sel)
	report.Collection = sel.Collection.Name
	report.Item = sel.Item.Name
	report.ItemID = sel.Item.ID
	report.Ordinal = sel.Ordinal
	report.Total = sel.Total
	report.Degraded = sel.Degraded
	report.CycleReset = sel.Reset

	if sel.Reset {
		st.ResetCycle()
		log.Infof("starting cycle %d", st.Cycle)
	}
	if st.IsProcessed(sel.Item.ID) {
		log.Warn("item was already posted in this cycle, posting again")
	}

	log.Infof("processing %s/%s (part %d of %d)", sel.Collection.Name, sel.Item.Name, sel.Ordinal, sel.Total)

	attemptErr := p.attempt(ctx, sel, report, log)
	if attemptErr != nil && ctx.Err() != nil {
		return p.interrupted(ctx, report, log, attemptErr)
	}

	next := sel.Next()
	st.CursorCollection = next.Collection
	st.CursorItem = next.Ordinal
	st.CompletedCollections = next.Completed

	outcome := OutcomeSuccess
	if attemptErr != nil {
		log.WithError(attemptErr).Error("attempt failed")
		p.recordFailure(st, report, sel, attemptErr)
		outcome = OutcomeFailure
	} else {
		p.recordSuccess(st, report, sel)
		log.Infof("attempt succeeded: %d published, %d failed, %d dropped",
			report.Published, report.count(SegmentFailed), report.count(SegmentDropped))
	}

	p.persist(st, report, log)
	return p.finish(ctx, report, outcome)
}

// interrupted 结束被取消的尝试，不保存状态，下次运行重试同一条目。
// 已经发布过分段的尝试按成功处理，见 publish。
func (p *Poster) interrupted(ctx context.Context, report *Report, log *logrus.Entry, err error) *Report {
	report.Error = err.Error()
	log.WithError(err).Warn("attempt interrupted, state left unchanged")
	return p.finish(ctx, report, OutcomeInterrupted)
}

func (p *Poster) locate(ctx context.Context, st *state.PostingState, opts RunOptions) (*catalog.Selection, error) {
	if opts.forced() {
		ordinal := opts.Ordinal
		if ordinal < 1 {
			ordinal = 1
		}
		return p.cursor.Exact(ctx, catalog.Position{
			Collection: opts.Collection,
			Ordinal:    ordinal,
			Completed:  st.CompletedCollections,
		})
	}
	return p.cursor.Advance(ctx, catalog.Position{
		Collection: st.CursorCollection,
		Ordinal:    st.CursorItem,
		Completed:  st.CompletedCollections,
	})
}

// attempt runs Fetch, Plan, Produce and Publish inside a transient work
// directory that is removed afterwards.
func (p *Poster) attempt(ctx context.Context, sel *catalog.Selection, report *Report, log *logrus.Entry) error {
	if p.cfg.WorkDir != "" {
		if err := os.MkdirAll(p.cfg.WorkDir, 0755); err != nil {
			return fail(ReasonFetchFailed, errors.Wrap(err, "failed to create work dir"))
		}
	}
	workDir, err := os.MkdirTemp(p.cfg.WorkDir, "reels-autopost-*")
	if err != nil {
		return fail(ReasonFetchFailed, errors.Wrap(err, "failed to create work dir"))
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			log.WithError(err).Warnf("failed to remove work dir %s", workDir)
		}
	}()

	source, err := p.fetch(ctx, sel.Item, workDir, log)
	if err != nil {
		return err
	}

	info, plan, err := p.plan(ctx, source, report, log)
	if err != nil {
		return err
	}

	outputs, err := p.produce(ctx, source, info, plan, workDir, report, log)
	if err != nil {
		return err
	}

	return p.publish(ctx, sel, outputs, report, log)
}

func (p *Poster) fetch(ctx context.Context, item catalog.Item, workDir string, log *logrus.Entry) (string, error) {
	ext := strings.ToLower(filepath.Ext(item.Name))
	if ext == "" {
		ext = ".mp4"
	}
	dest := filepath.Join(workDir, "source"+ext)

	log.Infof("downloading %s (%.1f MB)", item.Name, float64(item.Size)/(1024*1024))
	err := p.catalog.Download(ctx, item, dest, func(written, total int64) {
		if total > 0 {
			log.Debugf("download %d%%", written*100/total)
		}
	})
	if err != nil {
		return "", fail(ReasonFetchFailed, err)
	}

	fi, err := os.Stat(dest)
	if err != nil {
		return "", fail(ReasonFetchFailed, errors.Wrap(err, "downloaded file missing"))
	}
	if fi.Size() == 0 {
		return "", fail(ReasonFetchFailed, errors.New("downloaded file is empty"))
	}
	return dest, nil
}

func (p *Poster) plan(ctx context.Context, source string, report *Report, log *logrus.Entry) (*media.Info, *planner.Plan, error) {
	info, err := p.media.Probe(ctx, source)
	if err != nil {
		return nil, nil, fail(ReasonUnreadableMedia, err)
	}
	if !(info.Duration > 0) {
		return nil, nil, fail(ReasonUnreadableMedia, errors.Errorf("duration %v", info.Duration))
	}
	report.SourceDuration = info.Duration

	if p.cfg.MaxSourceSeconds > 0 && info.Duration > p.cfg.MaxSourceSeconds {
		return nil, nil, fail(ReasonSourceTooLong,
			errors.Errorf("%.0fs exceeds the %.0fs limit", info.Duration, p.cfg.MaxSourceSeconds))
	}

	plan, err := planner.Compute(info.Duration, p.cfg.MaxSegmentSeconds, p.cfg.SpeedFactor)
	if err != nil {
		return nil, nil, fail(ReasonUnreadableMedia, err)
	}

	for _, seg := range plan.Segments {
		report.Segments = append(report.Segments, SegmentReport{
			Index:    seg.Index,
			Start:    seg.Start,
			Duration: seg.Duration,
			Status:   SegmentPending,
		})
	}
	log.Infof("source %.1fs -> %d segment(s) of %.1fs, %.1fs each at %gx",
		info.Duration, plan.Count(), plan.SegmentDuration, plan.OutputDuration(), plan.Speed)
	return info, plan, nil
}

type output struct {
	segment int
	path    string
}

// produce renders every planned segment and keeps those whose realized
// length fits the output limit.
func (p *Poster) produce(ctx context.Context, source string, info *media.Info, plan *planner.Plan, workDir string, report *Report, log *logrus.Entry) ([]output, error) {
	var outputs []output
	for i, seg := range plan.Segments {
		if err := ctx.Err(); err != nil {
			return nil, fail(ReasonProductionFailed, err)
		}

		path := filepath.Join(workDir, fmt.Sprintf("part_%d.mp4", seg.Index+1))
		err := p.produceOne(ctx, source, path, seg, info.HasAudio, &report.Segments[i])
		if err != nil {
			log.WithError(err).Warnf("dropping segment %d/%d", seg.Index+1, plan.Count())
			report.Segments[i].Status = SegmentDropped
			report.Segments[i].Error = err.Error()
			p.metrics.IncSegmentsDropped()
			os.Remove(path)
			continue
		}
		p.metrics.IncSegmentsProduced()
		outputs = append(outputs, output{segment: i, path: path})
	}

	if len(outputs) == 0 {
		return nil, fail(ReasonProductionFailed, errors.Errorf("all %d segment(s) failed", plan.Count()))
	}
	return outputs, nil
}

func (p *Poster) produceOne(ctx context.Context, source, path string, seg planner.Segment, hasAudio bool, sr *SegmentReport) error {
	err := p.media.Transform(ctx, media.Job{
		Input:    source,
		Output:   path,
		Start:    seg.Start,
		Duration: seg.Duration,
		Speed:    p.cfg.SpeedFactor,
		HasAudio: hasAudio,
	})
	if err != nil {
		return errors.Wrap(err, "render")
	}

	out, err := p.media.Probe(ctx, path)
	if err != nil {
		return errors.Wrap(err, "probe rendered segment")
	}
	sr.OutputDuration = out.Duration
	if !(out.Duration > 0) || out.Duration > p.cfg.MaxSegmentSeconds {
		return errors.Errorf("rendered duration %.2fs outside (0, %.0fs]", out.Duration, p.cfg.MaxSegmentSeconds)
	}
	return nil
}

// publish posts the produced segments in order. The delay between posts only
// follows a successful publish that has more segments after it.
func (p *Poster) publish(ctx context.Context, sel *catalog.Selection, outputs []output, report *Report, log *logrus.Entry) error {
	total := len(report.Segments)
	var lastErr error

	for n, out := range outputs {
		sr := &report.Segments[out.segment]
		part := sr.Index + 1
		segLog := log.WithField("segment", part)

		text, err := p.captions.Render(sel.Item.Name, sel.Collection.Name, part, total, p.cfg.SpeedFactor, p.clock.Now())
		if err != nil {
			return fail(ReasonPublishFailed, err)
		}

		mediaID, err := p.publishSegment(ctx, out.path, text, segLog)
		if err != nil {
			lastErr = err
			sr.Status = SegmentFailed
			sr.Error = err.Error()
			p.metrics.ObservePublish("failure")
			segLog.WithError(err).Errorf("failed to publish segment %d/%d", part, total)

			if ctx.Err() != nil || !p.cfg.SkipFailedSegments {
				segLog.Warn("abandoning remaining segments")
				break
			}
			continue
		}

		sr.Status = SegmentPublished
		sr.MediaID = mediaID
		report.Published++
		p.metrics.ObservePublish("success")
		segLog.Infof("published segment %d/%d as %s", part, total, mediaID)

		if n < len(outputs)-1 && p.cfg.DelayBetweenPosts > 0 {
			segLog.Infof("waiting %s before the next segment", p.cfg.DelayBetweenPosts)
			if err := p.retry.Sleep(ctx, p.cfg.DelayBetweenPosts); err != nil {
				lastErr = err
				break
			}
		}
	}

	if report.Published == 0 {
		return fail(ReasonPublishFailed, lastErr)
	}
	return nil
}

// publishSegment uploads, waits for processing and publishes one file,
// retrying transient failures.
func (p *Poster) publishSegment(ctx context.Context, path, text string, log *logrus.Entry) (string, error) {
	var mediaID string
	err := p.retry.Do(ctx, func() error {
		sessionID, err := p.publisher.CreateUploadSession(ctx, path, text, p.cfg.MediaType)
		if err != nil {
			return err
		}
		if err := p.waitReady(ctx, sessionID); err != nil {
			return err
		}
		mediaID, err = p.publisher.Publish(ctx, sessionID)
		return err
	}, retryable, func(n uint, err error) {
		p.metrics.IncPublishRetries()
		log.WithError(err).Warnf("publish try %d/%d failed, retrying", n+1, p.retry.Attempts)
	})
	return mediaID, err
}

func (p *Poster) waitReady(ctx context.Context, sessionID string) error {
	err := p.retry.Poll(ctx, uint(p.cfg.StatusPollAttempts), p.cfg.StatusPollInterval, func() error {
		status, err := p.publisher.PollStatus(ctx, sessionID)
		if err != nil {
			return err
		}
		switch status {
		case instagram.SessionReady:
			return nil
		case instagram.SessionError:
			return errors.Wrapf(instagram.ErrProcessingFailed, "container %s", sessionID)
		default:
			return errPending
		}
	}, func(err error) bool {
		return errors.Is(err, errPending) || retryable(err)
	})
	if errors.Is(err, errPending) {
		return errors.Wrapf(instagram.ErrProcessingTimeout, "container %s", sessionID)
	}
	return err
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return instagram.IsRetryable(err)
}
