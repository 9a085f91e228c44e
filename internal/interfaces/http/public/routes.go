package public

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sngm3741/holiday-lights/api/internal/interfaces/http/common"
	publicapp "github.com/sngm3741/holiday-lights/api/internal/public/application"
)

func (h *Handler) routeListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), common.RequestTimeout)
		defer cancel()

		query := r.URL.Query()
		limit, _ := common.ParsePositiveInt(query.Get("limit"), publicapp.DefaultListLimit)
		routes, err := h.routes.List(ctx, publicapp.RouteFilter{
			PublicOnly: true,
			Sort:       strings.TrimSpace(query.Get("sort")),
			Limit:      limit,
		})
		if err != nil {
			common.WriteError(h.logger, w, err)
			return
		}
		items := buildRouteList(routes)
		common.WriteData(h.logger, w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
	}
}

// routeDetailHandler は匿名でも呼べる。非公開ルートは所有者以外には NotFound。
func (h *Handler) routeDetailHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), common.RequestTimeout)
		defer cancel()

		user, _ := common.UserFromContext(r.Context())
		route, err := h.routes.Detail(ctx, user.ID, strings.TrimSpace(chi.URLParam(r, "id")))
		if err != nil {
			common.WriteError(h.logger, w, err)
			return
		}
		common.WriteData(h.logger, w, http.StatusOK, buildRouteResponse(*route))
	}
}

func (h *Handler) myRoutesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := h.currentUser(w, r)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), common.RequestTimeout)
		defer cancel()

		limit, _ := common.ParsePositiveInt(r.URL.Query().Get("limit"), publicapp.DefaultListLimit)
		routes, err := h.routes.ListMine(ctx, user.ID, limit)
		if err != nil {
			common.WriteError(h.logger, w, err)
			return
		}
		items := buildRouteList(routes)
		common.WriteData(h.logger, w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
	}
}

func (h *Handler) routeCreateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := h.currentUser(w, r)
		if !ok {
			return
		}
		var req createRouteRequest
		if err := common.DecodeJSON(w, r, &req); err != nil {
			common.WriteBadRequest(h.logger, w, err.Error())
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), common.RequestTimeout)
		defer cancel()

		route, err := h.routes.Create(ctx, publicapp.CreateRouteCommand{
			UserID:      user.ID,
			UserName:    user.DisplayName(),
			Title:       h.sanitizer.Text(req.Title),
			Description: h.sanitizer.Text(req.Description),
			LocationIDs: req.LocationIDs,
			Tags:        h.sanitizer.Strings(req.Tags),
			IsPublic:    req.IsPublic,
		})
		if err != nil {
			common.WriteError(h.logger, w, err)
			return
		}
		common.WriteData(h.logger, w, http.StatusCreated, buildRouteResponse(*route))
	}
}

// routeUpdateHandler は送られた項目だけを書き換える。
func (h *Handler) routeUpdateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := h.currentUser(w, r)
		if !ok {
			return
		}
		var req updateRouteRequest
		if err := common.DecodeJSON(w, r, &req); err != nil {
			common.WriteBadRequest(h.logger, w, err.Error())
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), common.RequestTimeout)
		defer cancel()

		cmd := publicapp.UpdateRouteCommand{
			UserID:      user.ID,
			RouteID:     strings.TrimSpace(chi.URLParam(r, "id")),
			LocationIDs: req.LocationIDs,
			IsPublic:    req.IsPublic,
		}
		if req.Title != nil {
			title := h.sanitizer.Text(*req.Title)
			cmd.Title = &title
		}
		if req.Description != nil {
			description := h.sanitizer.Text(*req.Description)
			cmd.Description = &description
		}
		if req.Tags != nil {
			tags := h.sanitizer.Strings(*req.Tags)
			cmd.Tags = &tags
		}

		route, err := h.routes.Update(ctx, cmd)
		if err != nil {
			common.WriteError(h.logger, w, err)
			return
		}
		common.WriteData(h.logger, w, http.StatusOK, buildRouteResponse(*route))
	}
}

func (h *Handler) routeDeleteHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := h.currentUser(w, r)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), common.RequestTimeout)
		defer cancel()

		err := h.routes.Delete(ctx, publicapp.DeleteRouteCommand{
			UserID:  user.ID,
			IsAdmin: user.InGroup(h.adminGroup),
			RouteID: strings.TrimSpace(chi.URLParam(r, "id")),
		})
		if err != nil {
			common.WriteError(h.logger, w, err)
			return
		}
		common.WriteMessage(h.logger, w, http.StatusOK, "route deleted")
	}
}

func (h *Handler) savedRoutesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := h.currentUser(w, r)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), common.RequestTimeout)
		defer cancel()

		limit, _ := common.ParsePositiveInt(r.URL.Query().Get("limit"), publicapp.DefaultListLimit)
		routes, err := h.engagements.SavedRoutes(ctx, user.ID, limit)
		if err != nil {
			common.WriteError(h.logger, w, err)
			return
		}
		items := buildRouteList(routes)
		common.WriteData(h.logger, w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
	}
}
