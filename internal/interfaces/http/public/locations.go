package public

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sngm3741/holiday-lights/api/internal/interfaces/http/common"
	publicapp "github.com/sngm3741/holiday-lights/api/internal/public/application"
	publicdomain "github.com/sngm3741/holiday-lights/api/internal/public/domain"
)

func (h *Handler) locationListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), common.RequestTimeout)
		defer cancel()

		query := r.URL.Query()
		limit, _ := common.ParsePositiveInt(query.Get("limit"), publicapp.DefaultListLimit)
		filter := publicapp.LocationFilter{
			Status: publicdomain.LocationStatus(strings.TrimSpace(query.Get("status"))),
			Sort:   strings.TrimSpace(query.Get("sort")),
			Limit:  limit,
		}

		locations, err := h.locations.List(ctx, filter)
		if err != nil {
			common.WriteError(h.logger, w, err)
			return
		}
		common.WriteData(h.logger, w, http.StatusOK, h.buildLocationList(locations))
	}
}

func (h *Handler) locationDetailHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), common.RequestTimeout)
		defer cancel()

		id := strings.TrimSpace(chi.URLParam(r, "id"))
		loc, err := h.locations.Detail(ctx, id)
		if err != nil {
			common.WriteError(h.logger, w, err)
			return
		}
		common.WriteData(h.logger, w, http.StatusOK, h.buildLocationResponse(*loc))
	}
}

func (h *Handler) pendingPhotoHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := h.currentUser(w, r)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), common.RequestTimeout)
		defer cancel()

		locationID := strings.TrimSpace(chi.URLParam(r, "id"))
		pending, err := h.submissions.CheckPendingPhoto(ctx, user.ID, locationID)
		if err != nil {
			common.WriteError(h.logger, w, err)
			return
		}
		common.WriteData(h.logger, w, http.StatusOK, map[string]any{
			"locationId":           locationID,
			"hasPendingSubmission": pending,
		})
	}
}
