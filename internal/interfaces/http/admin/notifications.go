package admin

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sngm3741/holiday-lights/api/internal/apperror"
	"github.com/sngm3741/holiday-lights/api/internal/interfaces/http/common"
)

func (h *Handler) failedNotificationsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.notifications == nil {
			common.WriteData(h.logger, w, http.StatusOK, map[string]any{"items": []failedNotificationResponse{}, "count": 0})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), common.RequestTimeout)
		defer cancel()

		limit, _ := common.ParsePositiveInt(r.URL.Query().Get("limit"), 50)
		failures, err := h.notifications.Recent(ctx, limit)
		if err != nil {
			common.WriteError(h.logger, w, apperror.Dependency("list failed notifications", err))
			return
		}
		items := make([]failedNotificationResponse, 0, len(failures))
		for _, f := range failures {
			items = append(items, buildFailedNotificationResponse(f))
		}
		common.WriteData(h.logger, w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
	}
}

// stagedPhotoHandler は審査中の写真を返す。staging 以外のキーは扱わない。
func (h *Handler) stagedPhotoHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := path.Clean(strings.TrimPrefix(chi.URLParam(r, "*"), "/"))
		if h.photos == nil || !strings.HasPrefix(key, "staging/") {
			common.WriteError(h.logger, w, apperror.NotFound("photo", key))
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), common.UploadTimeout)
		defer cancel()

		rc, err := h.photos.Open(ctx, key)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				common.WriteError(h.logger, w, apperror.NotFound("photo", key))
				return
			}
			common.WriteError(h.logger, w, apperror.Dependency("open staged photo", err))
			return
		}
		defer rc.Close()

		contentType := mime.TypeByExtension(strings.ToLower(path.Ext(key)))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "private, no-store")
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, rc); err != nil {
			h.logger.Warn("failed to stream staged photo", "key", key, "error", err)
		}
	}
}
