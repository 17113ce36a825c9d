package poster

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
)

type realTimer struct{}

func (realTimer) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RetryPolicy 线性退避重试：Backoff, 2*Backoff, ...
// Timer 可替换，测试中不真正等待。
type RetryPolicy struct {
	Attempts uint
	Backoff  time.Duration
	Timer    retry.Timer
}

// Do 重复执行 fn，直到成功、retryIf 拒绝或次数用完，返回最后一个错误。
// onRetry 只在后面还有重试时调用。
func (p RetryPolicy) Do(ctx context.Context, fn func() error, retryIf func(error) bool, onRetry func(n uint, err error)) error {
	attempts := max(p.Attempts, 1)
	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.DelayType(p.linear),
		retry.LastErrorOnly(true),
		retry.WithTimer(p.timer()),
	}
	if retryIf != nil {
		opts = append(opts, retry.RetryIf(retryIf))
	}
	if onRetry != nil {
		opts = append(opts, retry.OnRetry(func(n uint, err error) {
			if n+1 < attempts {
				onRetry(n, err)
			}
		}))
	}
	return retry.Do(fn, opts...)
}

// Poll 每隔 interval 调用一次 fn，直到成功或 retryIf 拒绝
func (p RetryPolicy) Poll(ctx context.Context, attempts uint, interval time.Duration, fn func() error, retryIf func(error) bool) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(max(attempts, 1)),
		retry.Delay(interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryIf),
		retry.WithTimer(p.timer()),
	)
}

// Sleep 等待 d，ctx 结束时提前返回
func (p RetryPolicy) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-p.timer().After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// linear receives the 1-based number of the attempt that just failed.
func (p RetryPolicy) linear(n uint, _ error, _ *retry.Config) time.Duration {
	return time.Duration(n) * p.Backoff
}

func (p RetryPolicy) timer() retry.Timer {
	if p.Timer == nil {
		return realTimer{}
	}
	return p.Timer
}
