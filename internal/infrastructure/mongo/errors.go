package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/sngm3741/holiday-lights/api/internal/apperror"
)

const (
	readAttempts   = 3
	readRetryDelay = 100 * time.Millisecond
)

// IsTransient はネットワーク断・タイムアウトなど再試行で回復しうるエラーかを判定する。
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	return mongo.IsNetworkError(err) || mongo.IsTimeout(err)
}

// withReadRetry は読み取り専用の操作だけを再試行する。
func withReadRetry(ctx context.Context, fn func(context.Context) error) error {
	return apperror.Retry(ctx, readAttempts, readRetryDelay, IsTransient, fn)
}

func mapFindErr(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return apperror.ErrNotFound
	}
	return err
}

func mapInsertErr(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", apperror.ErrAlreadyExists, err)
	}
	return err
}
