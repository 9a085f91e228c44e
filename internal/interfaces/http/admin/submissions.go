package admin

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	adminapp "github.com/sngm3741/holiday-lights/api/internal/admin/application"
	admindomain "github.com/sngm3741/holiday-lights/api/internal/admin/domain"
	"github.com/sngm3741/holiday-lights/api/internal/interfaces/http/common"
)

func (h *Handler) submissionListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), common.RequestTimeout)
		defer cancel()

		query := r.URL.Query()
		limit, _ := common.ParsePositiveInt(query.Get("limit"), 100)
		subs, err := h.moderation.List(ctx, adminapp.SubmissionFilter{
			Status: admindomain.SubmissionStatus(strings.TrimSpace(query.Get("status"))),
			Type:   admindomain.SubmissionType(strings.TrimSpace(query.Get("type"))),
			Limit:  limit,
		})
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

func (h *Handler) submissionDetailHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), common.RequestTimeout)
		defer cancel()

		sub, err := h.moderation.Detail(ctx, strings.TrimSpace(chi.URLParam(r, "id")))
		if err != nil {
			common.WriteError(h.logger, w, err)
			return
		}
		common.WriteData(h.logger, w, http.StatusOK, buildSubmissionResponse(*sub))
	}
}

// approveHandler は写真の移動を含むため UploadTimeout を使う。
func (h *Handler) approveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod, ok := h.moderator(w, r)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), common.UploadTimeout)
		defer cancel()

		id := strings.TrimSpace(chi.URLParam(r, "id"))
		result, err := h.moderation.Approve(ctx, adminapp.ApproveCommand{SubmissionID: id, ModeratorID: mod.ID})
		if err != nil {
			common.WriteError(h.logger, w, err)
			return
		}
		h.logger.Info("submission approved",
			"submission_id", id,
			"location_id", result.LocationID,
			"moderator", mod.ID,
			"photos_moved", result.PhotosMoved,
			"photos_failed", result.PhotosFailed,
		)
		common.WriteData(h.logger, w, http.StatusOK, buildApproveResponse(*result))
	}
}

func (h *Handler) rejectHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod, ok := h.moderator(w, r)
		if !ok {
			return
		}
		var req rejectRequest
		if err := common.DecodeJSON(w, r, &req); err != nil {
			common.WriteBadRequest(h.logger, w, err.Error())
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), common.UploadTimeout)
		defer cancel()

		id := strings.TrimSpace(chi.URLParam(r, "id"))
		sub, err := h.moderation.Reject(ctx, adminapp.RejectCommand{
			SubmissionID: id,
			ModeratorID:  mod.ID,
			Reason:       h.sanitizer.Text(req.Reason),
		})
		if err != nil {
			common.WriteError(h.logger, w, err)
			return
		}
		h.logger.Info("submission rejected", "submission_id", id, "moderator", mod.ID)
		common.WriteData(h.logger, w, http.StatusOK, buildSubmissionResponse(*sub))
	}
}

// submissionEditHandler は承認前に説明・タグ・品質を修正する。
func (h *Handler) submissionEditHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod, ok := h.moderator(w, r)
		if !ok {
			return
		}
		var req editSubmissionRequest
		if err := common.DecodeJSON(w, r, &req); err != nil {
			common.WriteBadRequest(h.logger, w, err.Error())
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), common.RequestTimeout)
		defer cancel()

		cmd := adminapp.EditSubmissionCommand{
			SubmissionID:   strings.TrimSpace(chi.URLParam(r, "id")),
			DisplayQuality: req.DisplayQuality,
		}
		if req.Description != nil {
			description := h.sanitizer.Text(*req.Description)
			cmd.Description = &description
		}
		if req.AIDescription != nil {
			description := h.sanitizer.Text(*req.AIDescription)
			cmd.AIDescription = &description
		}
		if req.DetectedTags != nil {
			tags := h.sanitizer.Strings(*req.DetectedTags)
			cmd.DetectedTags = &tags
		}

		sub, err := h.moderation.Edit(ctx, cmd)
		if err != nil {
			common.WriteError(h.logger, w, err)
			return
		}
		h.logger.Info("submission edited", "submission_id", sub.ID, "moderator", mod.ID)
		common.WriteData(h.logger, w, http.StatusOK, buildSubmissionResponse(*sub))
	}
}
