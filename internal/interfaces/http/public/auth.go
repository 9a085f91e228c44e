package public

import (
	"context"
	"net/http"

	"github.com/sngm3741/holiday-lights/api/internal/interfaces/http/common"
	publicapp "github.com/sngm3741/holiday-lights/api/internal/public/application"
)

func (h *Handler) authVerifyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := h.currentUser(w, r)
		if !ok {
			return
		}
		common.WriteData(h.logger, w, http.StatusOK, map[string]any{
			"status":  "ok",
			"user":    user,
			"isAdmin": user.InGroup(h.adminGroup),
		})
	}
}

// profileHandler はトークンの内容と投稿実績をまとめて返す。
func (h *Handler) profileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := h.currentUser(w, r)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), common.RequestTimeout)
		defer cancel()

		stats, err := h.submissions.Stats(ctx, user.ID)
		if err != nil {
			common.WriteError(h.logger, w, err)
			return
		}
		common.WriteData(h.logger, w, http.StatusOK, buildProfileResponse(user, user.InGroup(h.adminGroup), stats))
	}
}

func (h *Handler) leaderboardHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), common.RequestTimeout)
		defer cancel()

		limit, _ := common.ParsePositiveInt(r.URL.Query().Get("limit"), publicapp.DefaultListLimit)
		entries, err := h.submissions.Leaderboard(ctx, limit)
		if err != nil {
			common.WriteError(h.logger, w, err)
			return
		}
		items := make([]leaderboardEntryResponse, 0, len(entries))
		for _, e := range entries {
			items = append(items, leaderboardEntryResponse{
				Rank:     e.Rank,
				UserID:   e.UserID,
				UserName: e.UserName,
				Approved: e.Approved,
				Badge:    buildBadgeResponse(e.Badge),
			})
		}
		common.WriteData(h.logger, w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
	}
}
