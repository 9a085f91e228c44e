package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/sngm3741/holiday-lights/api/internal/apperror"
	"github.com/sngm3741/holiday-lights/api/internal/config"
	"github.com/sngm3741/holiday-lights/api/internal/interfaces/http/common"
)

const (
	tokenLeeway         = 30 * time.Second
	jwksClientTimeout   = 5 * time.Second
	jwksRefreshInterval = 15 * time.Minute
)

var errInvalidToken = errors.New("アクセストークンが無効です")

type authClaims struct {
	jwt.RegisteredClaims
	Name              string   `json:"name,omitempty"`
	Picture           string   `json:"picture,omitempty"`
	PreferredUsername string   `json:"preferred_username,omitempty"`
	Groups            []string `json:"groups,omitempty"`
	CognitoGroups     []string `json:"cognito:groups,omitempty"`
}

// groups は groups と cognito:groups を重複なくまとめる。
func (c *authClaims) groups() []string {
	out := make([]string, 0, len(c.Groups)+len(c.CognitoGroups))
	for _, g := range append(append([]string{}, c.Groups...), c.CognitoGroups...) {
		g = strings.TrimSpace(g)
		if g != "" && !slices.Contains(out, g) {
			out = append(out, g)
		}
	}
	return out
}

// authenticator は HS256 の共有シークレットと、設定されていれば JWKS (RS256) でトークンを検証する。
type authenticator struct {
	hsConfigs []config.JWTConfig
	audience  string
	jwks      keyfunc.Keyfunc
	logger    *slog.Logger
}

func newAuthenticator(cfg config.Config, logger *slog.Logger) (*authenticator, error) {
	a := &authenticator{
		hsConfigs: append([]config.JWTConfig(nil), cfg.JWTConfigs...),
		audience:  cfg.JWTAudience,
		logger:    logger,
	}
	if cfg.JWKSURL == "" {
		return a, nil
	}

	// 起動時に JWKS が取れなくても起動は続け、バックグラウンドで再取得する。
	storage, err := jwkset.NewStorageFromHTTP(cfg.JWKSURL, jwkset.HTTPClientStorageOptions{
		Client:                    &http.Client{Timeout: jwksClientTimeout},
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           jwksRefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("failed to refresh JWKS", "url", cfg.JWKSURL, "error", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS storage: %w", err)
	}
	kf, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS keyfunc: %w", err)
	}
	a.jwks = kf
	return a, nil
}

// parse は HS256 の設定を順に試し、どれにも合わなければ JWKS で検証する。
func (a *authenticator) parse(ctx context.Context, tokenString string) (*authClaims, error) {
	if len(a.hsConfigs) == 0 && a.jwks == nil {
		return nil, errors.New("認証設定が構成されていません")
	}

	for _, cfg := range a.hsConfigs {
		secret := cfg.Secret
		claims := &authClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(tokenLeeway))
		if err != nil || !token.Valid {
			continue
		}
		if cfg.Issuer != "" && claims.Issuer != cfg.Issuer {
			continue
		}
		if a.acceptable(claims) {
			return claims, nil
		}
	}

	if a.jwks != nil {
		claims := &authClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, a.jwks.KeyfuncCtx(ctx),
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(tokenLeeway),
		)
		if err == nil && token.Valid && a.acceptable(claims) {
			return claims, nil
		}
		if err != nil {
			a.logger.Debug("JWKS token verification failed", "error", err)
		}
	}

	return nil, errInvalidToken
}

func (a *authenticator) acceptable(claims *authClaims) bool {
	if claims.Subject == "" {
		return false
	}
	if a.audience != "" && !slices.Contains(claims.Audience, a.audience) {
		return false
	}
	return true
}

// authenticate は Authorization ヘッダーを検証する。ヘッダーが無い場合 present は false。
func (a *authenticator) authenticate(r *http.Request) (user common.AuthenticatedUser, present bool, err error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return common.AuthenticatedUser{}, false, errors.New("Authorization ヘッダーがありません")
	}
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(header, bearerPrefix) {
		return common.AuthenticatedUser{}, true, errors.New("Bearer トークンを指定してください")
	}
	tokenString := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if tokenString == "" {
		return common.AuthenticatedUser{}, true, errors.New("アクセストークンが空です")
	}

	claims, err := a.parse(r.Context(), tokenString)
	if err != nil {
		return common.AuthenticatedUser{}, true, err
	}
	return common.AuthenticatedUser{
		ID:       claims.Subject,
		Name:     claims.Name,
		Username: claims.PreferredUsername,
		Picture:  claims.Picture,
		Groups:   claims.groups(),
	}, true, nil
}

// required は有効なトークンが無ければ 401 を返す。
func (a *authenticator) required(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _, err := a.authenticate(r)
		if err != nil {
			common.WriteUnauthorized(a.logger, w, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(common.ContextWithUser(r.Context(), user)))
	})
}

// optional はヘッダーが無ければ匿名で通す。ヘッダーがあって無効なら 401。
func (a *authenticator) optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, present, err := a.authenticate(r)
		if !present {
			next.ServeHTTP(w, r)
			return
		}
		if err != nil {
			common.WriteUnauthorized(a.logger, w, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(common.ContextWithUser(r.Context(), user)))
	})
}

// requireGroup は required の後段に置く。
func requireGroup(group string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := common.UserFromContext(r.Context())
			if !ok {
				common.WriteUnauthorized(logger, w, "認証が必要です")
				return
			}
			if !user.InGroup(group) {
				common.WriteError(logger, w, apperror.Forbidden("Administrator access required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
