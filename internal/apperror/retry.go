package apperror

import (
	"context"
	"time"
)

// Retry は isTransient が true を返すエラーに限り fn を attempts 回まで再実行する。
// 待機は delay * 試行回数 の線形バックオフ。ctx のキャンセルで即座に打ち切る。
func Retry(ctx context.Context, attempts int, delay time.Duration, isTransient func(error) bool, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if isTransient == nil || !isTransient(lastErr) || i == attempts-1 {
			return lastErr
		}
		if delay > 0 {
			timer := time.NewTimer(delay * time.Duration(i+1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return lastErr
			case <-timer.C:
			}
		}
	}
	return lastErr
}
