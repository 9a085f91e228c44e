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

func (h *Handler) locationListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), common.RequestTimeout)
		defer cancel()

		query := r.URL.Query()
		limit, _ := common.ParsePositiveInt(query.Get("limit"), 100)
		locations, err := h.locations.List(ctx, adminapp.LocationFilter{
			Status: admindomain.LocationStatus(strings.TrimSpace(query.Get("status"))),
			Limit:  limit,
		})
		if err != nil {
			common.WriteError(h.logger, w, err)
			return
		}
		items := make([]locationResponse, 0, len(locations))
		for _, loc := range locations {
			items = append(items, h.buildLocationResponse(loc))
		}
		common.WriteData(h.logger, w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
	}
}

func (h *Handler) locationDetailHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), common.RequestTimeout)
		defer cancel()

		loc, err := h.locations.Detail(ctx, strings.TrimSpace(chi.URLParam(r, "id")))
		if err != nil {
			common.WriteError(h.logger, w, err)
			return
		}
		common.WriteData(h.logger, w, http.StatusOK, h.buildLocationResponse(*loc))
	}
}

func (h *Handler) locationUpdateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateLocationRequest
		if err := common.DecodeJSON(w, r, &req); err != nil {
			common.WriteBadRequest(h.logger, w, err.Error())
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), common.RequestTimeout)
		defer cancel()

		cmd := adminapp.UpdateLocationCommand{Status: req.Status}
		if req.Description != nil {
			description := h.sanitizer.Text(*req.Description)
			cmd.Description = &description
		}
		if req.Decorations != nil {
			decorations := h.sanitizer.Strings(*req.Decorations)
			cmd.Decorations = &decorations
		}

		loc, err := h.locations.Update(ctx, strings.TrimSpace(chi.URLParam(r, "id")), cmd)
		if err != nil {
			common.WriteError(h.logger, w, err)
			return
		}
		common.WriteData(h.logger, w, http.StatusOK, h.buildLocationResponse(*loc))
	}
}

// locationDeleteHandler は既定で inactive への論理削除。?hard=true で写真と記録ごと物理削除する。
func (h *Handler) locationDeleteHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod, ok := h.moderator(w, r)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), common.UploadTimeout)
		defer cancel()

		id := strings.TrimSpace(chi.URLParam(r, "id"))
		hard := strings.EqualFold(r.URL.Query().Get("hard"), "true")
		var err error
		if hard {
			err = h.locations.HardDelete(ctx, id)
		} else {
			err = h.locations.SoftDelete(ctx, id)
		}
		if err != nil {
			common.WriteError(h.logger, w, err)
			return
		}
		h.logger.Info("location deleted", "location_id", id, "hard", hard, "moderator", mod.ID)
		common.WriteMessage(h.logger, w, http.StatusOK, "location deleted")
	}
}
