package common

import "context"

type contextKey string

const authUserContextKey contextKey = "authUser"

// AuthenticatedUser represents the JWT-derived principal.
type AuthenticatedUser struct {
	ID       string   `json:"id"`
	Name     string   `json:"name,omitempty"`
	Username string   `json:"username,omitempty"`
	Picture  string   `json:"picture,omitempty"`
	Groups   []string `json:"groups,omitempty"`
}

// DisplayName は投稿者名として表示する名前を返す。
func (u AuthenticatedUser) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

// InGroup reports whether the user belongs to group.
func (u AuthenticatedUser) InGroup(group string) bool {
	if group == "" {
		return false
	}
	for _, g := range u.Groups {
		if g == group {
			return true
		}
	}
	return false
}

// ContextWithUser stores the authenticated user into context.
func ContextWithUser(ctx context.Context, user AuthenticatedUser) context.Context {
	return context.WithValue(ctx, authUserContextKey, user)
}

// UserFromContext extracts the authenticated user from context.
func UserFromContext(ctx context.Context) (AuthenticatedUser, bool) {
	user, ok := ctx.Value(authUserContextKey).(AuthenticatedUser)
	return user, ok
}
