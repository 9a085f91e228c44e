// Package apperror はアプリケーション共通のエラー分類を定義する。
// HTTP 層は Kind を見てステータスコードを決め、内部詳細は Dependency の場合に隠す。
package apperror

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind はエラーの分類。
type Kind string

const (
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindDuplicate   Kind = "duplicate"
	KindForbidden   Kind = "forbidden"
	KindRateLimited Kind = "rate_limited"
	KindDependency  Kind = "dependency"
	KindInternal    Kind = "internal"
)

// Error は分類・コード・利用者向けメッセージを持つ統一エラー。
type Error struct {
	Kind    Kind
	Code    string
	Message string
	// Fields はフィールド単位の検証エラー。
	Fields map[string]string
	// Details は重複判定結果など、呼び出し側へ返す付加情報。
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+e.Fields[k])
		}
		return fmt.Sprintf("[%s] %s (%s)", e.Code, e.Message, strings.Join(parts, "; "))
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Validation は入力値エラーを生成する。
func Validation(fields map[string]string) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    "VALIDATION_ERROR",
		Message: "Invalid request",
		Fields:  fields,
	}
}

// NotFound は参照先エンティティが存在しないことを表す。
func NotFound(entity, id string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", entity, id),
	}
}

// Conflict は状態遷移の競合や重複申請を表す。
func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

// Duplicate は重複検出の結果を details に載せて返す。
func Duplicate(message string, details any) *Error {
	return &Error{Kind: KindDuplicate, Code: "DUPLICATE", Message: message, Details: details}
}

// Forbidden は権限不足。
func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Code: "FORBIDDEN", Message: message}
}

// RateLimited はレート制限超過。
func RateLimited() *Error {
	return &Error{Kind: KindRateLimited, Code: "RATE_LIMITED", Message: "Too many requests"}
}

// Dependency はストアや外部サービスの失敗を包む。Message は利用者向けの汎用文言に固定する。
func Dependency(op string, err error) *Error {
	return &Error{
		Kind:    KindDependency,
		Code:    "DEPENDENCY_ERROR",
		Message: "A backing service is temporarily unavailable",
		Err:     fmt.Errorf("%s: %w", op, err),
	}
}

// KindOf は err に含まれる *Error の Kind を返す。該当しなければ KindInternal。
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is は err が指定 Kind の *Error を含むか判定する。
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// FieldErrors は検証エラーを積み上げるためのヘルパー。
type FieldErrors map[string]string

// Add は最初のエラーだけを保持する。
func (f FieldErrors) Add(field, message string) {
	if _, exists := f[field]; !exists {
		f[field] = message
	}
}

// Err は1件以上あれば Validation エラーを返す。
func (f FieldErrors) Err() error {
	if len(f) == 0 {
		return nil
	}
	return Validation(map[string]string(f))
}
