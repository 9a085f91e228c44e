package public

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sngm3741/holiday-lights/api/internal/apperror"
	"github.com/sngm3741/holiday-lights/api/internal/interfaces/http/common"
	publicapp "github.com/sngm3741/holiday-lights/api/internal/public/application"
	publicdomain "github.com/sngm3741/holiday-lights/api/internal/public/domain"
)

const multipartMemory = 1 << 20

func (h *Handler) submitEntryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := h.currentUser(w, r)
		if !ok {
			return
		}
		var req submitEntryRequest
		if err := common.DecodeJSON(w, r, &req); err != nil {
			common.WriteBadRequest(h.logger, w, err.Error())
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), common.RequestTimeout)
		defer cancel()

		sub, err := h.submissions.SubmitEntry(ctx, publicapp.SubmitEntryCommand{
			UserID:      user.ID,
			UserName:    user.DisplayName(),
			Address:     h.sanitizer.Text(req.Address),
			Lat:         req.Lat,
			Lng:         req.Lng,
			Description: h.sanitizer.Text(req.Description),
			Photos:      req.Photos,
		})
		if err != nil {
			h.writeSubmissionError(w, err)
			return
		}
		h.logger.Info("submission created", "submission_id", sub.ID, "user_id", user.ID, "photos", len(sub.Photos))
		common.WriteData(h.logger, w, http.StatusCreated, buildSubmissionResponse(*sub))
	}
}

func (h *Handler) submitPhotoUpdateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := h.currentUser(w, r)
		if !ok {
			return
		}
		var req submitPhotoUpdateRequest
		if err := common.DecodeJSON(w, r, &req); err != nil {
			common.WriteBadRequest(h.logger, w, err.Error())
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), common.RequestTimeout)
		defer cancel()

		sub, err := h.submissions.SubmitPhotoUpdate(ctx, publicapp.SubmitPhotoUpdateCommand{
			UserID:     user.ID,
			UserName:   user.DisplayName(),
			LocationID: strings.TrimSpace(chi.URLParam(r, "id")),
			Photos:     req.Photos,
		})
		if err != nil {
			common.WriteError(h.logger, w, err)
			return
		}
		h.logger.Info("photo update submitted", "submission_id", sub.ID, "location_id", sub.TargetLocationID, "user_id", user.ID)
		common.WriteData(h.logger, w, http.StatusCreated, buildSubmissionResponse(*sub))
	}
}

func (h *Handler) checkDuplicateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := h.currentUser(w, r); !ok {
			return
		}
		query := r.URL.Query()
		lat, err := common.ParseOptionalFloat(query.Get("lat"))
		if err != nil {
			common.WriteError(h.logger, w, apperror.Validation(map[string]string{"lat": err.Error()}))
			return
		}
		lng, err := common.ParseOptionalFloat(query.Get("lng"))
		if err != nil {
			common.WriteError(h.logger, w, apperror.Validation(map[string]string{"lng": err.Error()}))
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), common.RequestTimeout)
		defer cancel()

		result, err := h.submissions.CheckDuplicate(ctx, publicapp.CheckDuplicateCommand{
			Address: h.sanitizer.Text(query.Get("address")),
			Lat:     lat,
			Lng:     lng,
		})
		if err != nil {
			common.WriteError(h.logger, w, err)
			return
		}
		common.WriteData(h.logger, w, http.StatusOK, h.buildDuplicateResponse(result))
	}
}

func (h *Handler) mySubmissionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := h.currentUser(w, r)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), common.RequestTimeout)
		defer cancel()

		limit, _ := common.ParsePositiveInt(r.URL.Query().Get("limit"), publicapp.DefaultListLimit)
		subs, err := h.submissions.ListMine(ctx, user.ID, limit)
		if err != nil {
			common.WriteError(h.logger, w, err)
			return
		}
		items := make([]submissionResponse, 0, len(subs))
		for _, sub := range subs {
			items = append(items, buildSubmissionResponse(sub))
		}
		common.WriteData(h.logger, w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
	}
}

// photoUploadHandler は multipart の "file" フィールドを staging へ保存してキーを返す。
func (h *Handler) photoUploadHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := h.currentUser(w, r)
		if !ok {
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, publicapp.MaxPhotoBytes+multipartMemory)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				common.WriteError(h.logger, w, apperror.Validation(map[string]string{"file": "file must be at most 10 MiB"}))
				return
			}
			common.WriteBadRequest(h.logger, w, "multipart form data is required")
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("file")
		if err != nil {
			common.WriteError(h.logger, w, apperror.Validation(map[string]string{"file": "file is required"}))
			return
		}
		defer file.Close()

		ctx, cancel := context.WithTimeout(r.Context(), common.UploadTimeout)
		defer cancel()

		key, err := h.photos.Upload(ctx, publicapp.UploadPhotoCommand{
			UserID:      user.ID,
			ContentType: header.Header.Get("Content-Type"),
			Body:        file,
		})
		if err != nil {
			common.WriteError(h.logger, w, err)
			return
		}
		common.WriteData(h.logger, w, http.StatusCreated, map[string]string{"key": key})
	}
}

// writeSubmissionError は重複エラーの details を API 形へ変換してから書く。
func (h *Handler) writeSubmissionError(w http.ResponseWriter, err error) {
	var appErr *apperror.Error
	if errors.As(err, &appErr) && appErr.Kind == apperror.KindDuplicate {
		if result, ok := appErr.Details.(publicdomain.DuplicateResult); ok {
			common.WriteErrorWithDetails(h.logger, w, err, h.buildDuplicateResponse(result))
			return
		}
	}
	common.WriteError(h.logger, w, err)
}
