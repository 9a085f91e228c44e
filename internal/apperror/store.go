package apperror

import "errors"

// ストア層が返す番兵エラー。サービス層で Kind 付きの *Error に変換する。
var (
	ErrNotFound           = errors.New("record not found")
	ErrAlreadyExists      = errors.New("record already exists")
	ErrPreconditionFailed = errors.New("precondition failed")
)
