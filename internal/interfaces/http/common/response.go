package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sngm3741/holiday-lights/api/internal/apperror"
)

// SuccessEnvelope は成功レスポンスの共通形。
type SuccessEnvelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorEnvelope は失敗レスポンスの共通形。
type ErrorEnvelope struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
}

// ErrorBody carries the code, message and optional details.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// WriteJSON serializes payload to JSON with status and logs on failure.
func WriteJSON(logger *slog.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil && logger != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

// WriteData は {"success":true,"data":...} を書く。
func WriteData(logger *slog.Logger, w http.ResponseWriter, status int, data any) {
	WriteJSON(logger, w, status, SuccessEnvelope{Success: true, Data: data})
}

// WriteMessage はデータを持たない成功レスポンス。
func WriteMessage(logger *slog.Logger, w http.ResponseWriter, status int, message string) {
	WriteJSON(logger, w, status, SuccessEnvelope{Success: true, Message: message})
}

// WriteError は apperror.Kind からステータスを決める。Dependency と未分類のエラーは内部詳細を返さない。
func WriteError(logger *slog.Logger, w http.ResponseWriter, err error) {
	WriteErrorWithDetails(logger, w, err, nil)
}

// WriteErrorWithDetails は details が nil でなければ Error.Details の代わりに返す。
func WriteErrorWithDetails(logger *slog.Logger, w http.ResponseWriter, err error, details any) {
	status, body := errorBody(err)
	if details != nil {
		body.Details = details
	}
	if logger != nil {
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("request failed", "status", status, "error", err)
		case status == http.StatusTooManyRequests:
			logger.Warn("request rate limited", "error", err)
		default:
			logger.Debug("request rejected", "status", status, "error", err)
		}
	}
	WriteJSON(logger, w, status, ErrorEnvelope{Success: false, Error: body})
}

// WriteBadRequest は入力の形式エラー（JSON 解析失敗など）を返す。
func WriteBadRequest(logger *slog.Logger, w http.ResponseWriter, message string) {
	WriteJSON(logger, w, http.StatusBadRequest, ErrorEnvelope{Error: ErrorBody{Code: "BAD_REQUEST", Message: message}})
}

// WriteUnauthorized is used by the auth middleware.
func WriteUnauthorized(logger *slog.Logger, w http.ResponseWriter, message string) {
	WriteJSON(logger, w, http.StatusUnauthorized, ErrorEnvelope{Error: ErrorBody{Code: "UNAUTHORIZED", Message: message}})
}

func errorBody(err error) (int, ErrorBody) {
	var appErr *apperror.Error
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError, ErrorBody{Code: "INTERNAL_ERROR", Message: "Internal server error"}
	}
	body := ErrorBody{Code: appErr.Code, Message: appErr.Message}
	switch appErr.Kind {
	case apperror.KindValidation:
		if len(appErr.Fields) > 0 {
			body.Details = appErr.Fields
		}
		return http.StatusBadRequest, body
	case apperror.KindForbidden:
		return http.StatusForbidden, body
	case apperror.KindNotFound:
		return http.StatusNotFound, body
	case apperror.KindConflict:
		return http.StatusConflict, body
	case apperror.KindDuplicate:
		body.Details = appErr.Details
		return http.StatusConflict, body
	case apperror.KindRateLimited:
		return http.StatusTooManyRequests, body
	case apperror.KindDependency:
		return http.StatusServiceUnavailable, body
	}
	return http.StatusInternalServerError, ErrorBody{Code: "INTERNAL_ERROR", Message: "Internal server error"}
}

// ErrEmptyBody は本文が空の場合に DecodeJSON が返す。
var ErrEmptyBody = errors.New("request body is empty")

// DecodeJSON はサイズ上限付きで本文を dst へ読み込む。空の本文はエラー。
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, MaxRequestBody)
	decoder := json.NewDecoder(body)
	if err := decoder.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		case errors.Is(err, io.EOF):
			return ErrEmptyBody
		default:
			return fmt.Errorf("invalid JSON: %s", strings.TrimPrefix(err.Error(), "json: "))
		}
	}
	return nil
}
