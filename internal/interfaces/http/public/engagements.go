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

// parseTarget は URL の {targetType}/{targetId} を読む。複数形も受け付ける。
func parseTarget(r *http.Request) (publicdomain.Target, error) {
	id := strings.TrimSpace(chi.URLParam(r, "targetId"))
	var kind publicdomain.TargetKind
	switch strings.ToLower(strings.TrimSpace(chi.URLParam(r, "targetType"))) {
	case "location", "locations":
		kind = publicdomain.TargetLocation
	case "route", "routes":
		kind = publicdomain.TargetRoute
	default:
		return publicdomain.Target{}, apperror.Validation(map[string]string{"targetType": "must be location or route"})
	}
	if id == "" {
		return publicdomain.Target{}, apperror.Validation(map[string]string{"targetId": "required"})
	}
	return publicdomain.Target{Kind: kind, ID: id}, nil
}

func (h *Handler) reactHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := h.currentUser(w, r)
		if !ok {
			return
		}
		target, err := parseTarget(r)
		if err != nil {
			common.WriteError(h.logger, w, err)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), common.RequestTimeout)
		defer cancel()

		t := publicdomain.EngagementType(strings.ToLower(chi.URLParam(r, "type")))
		result, err := h.engagements.React(ctx, user.ID, t, target)
		if err != nil {
			common.WriteError(h.logger, w, err)
			return
		}
		status := http.StatusCreated
		if result.AlreadyExisted {
			status = http.StatusOK
		}
		common.WriteData(h.logger, w, status, buildEngagementResponse(target, t, result))
	}
}

func (h *Handler) unReactHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := h.currentUser(w, r)
		if !ok {
			return
		}
		target, err := parseTarget(r)
		if err != nil {
			common.WriteError(h.logger, w, err)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), common.RequestTimeout)
		defer cancel()

		t := publicdomain.EngagementType(strings.ToLower(chi.URLParam(r, "type")))
		result, err := h.engagements.UnReact(ctx, user.ID, t, target)
		if err != nil {
			common.WriteError(h.logger, w, err)
			return
		}
		common.WriteData(h.logger, w, http.StatusOK, buildEngagementResponse(target, t, result))
	}
}

func (h *Handler) reportHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := h.currentUser(w, r)
		if !ok {
			return
		}
		var req reportRequest
		// 理由は任意なので空の本文も許す。
		if err := common.DecodeJSON(w, r, &req); err != nil && !errors.Is(err, common.ErrEmptyBody) {
			common.WriteBadRequest(h.logger, w, err.Error())
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), common.RequestTimeout)
		defer cancel()

		locationID := strings.TrimSpace(chi.URLParam(r, "id"))
		result, err := h.engagements.Report(ctx, publicapp.ReportCommand{
			UserID:     user.ID,
			LocationID: locationID,
			Reason:     h.sanitizer.Text(req.Reason),
		})
		if err != nil {
			common.WriteError(h.logger, w, err)
			return
		}
		status := http.StatusCreated
		if result.AlreadyExisted {
			status = http.StatusOK
		}
		target := publicdomain.Target{Kind: publicdomain.TargetLocation, ID: locationID}
		common.WriteData(h.logger, w, status, buildEngagementResponse(target, publicdomain.EngagementReport, result))
	}
}

func (h *Handler) engagementStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := h.currentUser(w, r)
		if !ok {
			return
		}
		target, err := parseTarget(r)
		if err != nil {
			common.WriteError(h.logger, w, err)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), common.RequestTimeout)
		defer cancel()

		status, err := h.engagements.Status(ctx, user.ID, target)
		if err != nil {
			common.WriteError(h.logger, w, err)
			return
		}
		common.WriteData(h.logger, w, http.StatusOK, buildEngagementStatusResponse(status))
	}
}

func (h *Handler) favoritesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := h.currentUser(w, r)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), common.RequestTimeout)
		defer cancel()

		limit, _ := common.ParsePositiveInt(r.URL.Query().Get("limit"), publicapp.DefaultListLimit)
		locations, err := h.engagements.Favorites(ctx, user.ID, limit)
		if err != nil {
			common.WriteError(h.logger, w, err)
			return
		}
		common.WriteData(h.logger, w, http.StatusOK, h.buildLocationList(locations))
	}
}
