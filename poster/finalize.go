package poster

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/xpzouying/reels-autopost/catalog"
	"github.com/xpzouying/reels-autopost/state"
)

func (p *Poster) recordSuccess(st *state.PostingState, report *Report, sel *catalog.Selection) {
	now := p.clock.Now()
	st.ConsecutiveErrors = 0
	st.TotalPosts++
	st.LastSuccessAt = &now
	st.LastAttemptAt = &now
	st.LastError = ""
	st.MarkProcessed(sel.Item.ID)
	st.RecordSuccess(p.entry(report, sel, state.KindSuccess, ""), p.cfg.HistoryLimit)
}

func (p *Poster) recordFailure(st *state.PostingState, report *Report, sel *catalog.Selection, err error) {
	reason := ReasonPublishFailed
	var attemptErr *AttemptError
	if errors.As(err, &attemptErr) {
		reason = attemptErr.Reason
	}
	report.Reason = reason
	report.Error = err.Error()

	now := p.clock.Now()
	st.ConsecutiveErrors++
	st.LastAttemptAt = &now
	st.LastErrorAt = &now
	st.LastError = err.Error()

	kind := state.KindFailed
	if reason == ReasonSourceTooLong {
		kind = state.KindSkipped
	}
	st.RecordFailure(p.entry(report, sel, kind, reason), p.cfg.HistoryLimit)
}

func (p *Poster) entry(report *Report, sel *catalog.Selection, kind string, reason Reason) state.HistoryEntry {
	e := state.HistoryEntry{
		AttemptID: report.AttemptID,
		Kind:      kind,
		Reason:    string(reason),
		Published: report.Published,
		Segments:  len(report.Segments),
		At:        p.clock.Now(),
	}
	if sel != nil {
		e.ItemID = sel.Item.ID
		e.Name = sel.Item.Name
		e.Collection = sel.Collection.Name
		e.Ordinal = sel.Ordinal
	}
	return e
}

// persist 保存一次状态。保存失败只记录日志，结果以内存中的为准
func (p *Poster) persist(st *state.PostingState, report *Report, log *logrus.Entry) {
	report.ConsecutiveErrors = st.ConsecutiveErrors
	report.TotalPosts = st.TotalPosts
	p.metrics.SetState(st.ConsecutiveErrors, st.TotalPosts)

	if err := p.store.Save(st); err != nil {
		log.WithError(err).Error("failed to persist posting state, outcome is not durable")
		return
	}
	report.Persisted = true
}

func (p *Poster) finish(ctx context.Context, report *Report, outcome Outcome) *Report {
	report.Outcome = outcome
	report.FinishedAt = p.clock.Now()
	p.metrics.ObserveAttempt(string(outcome))

	if p.notifier != nil && notifies(outcome) {
		p.notifier.Notify(ctx, report)
	}
	return report
}

// notifies 只有成功和失败才发通知；每日限制、错误上限和中断都不发
func notifies(outcome Outcome) bool {
	return outcome == OutcomeSuccess || outcome == OutcomeFailure
}
