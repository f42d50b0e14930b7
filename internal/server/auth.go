package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"

	"xapikit/xapi"
)

// Credential is a Basic account accepted by the LRS. HomePage scopes the
// authority account written into stored statements.
type Credential struct {
	Username string
	Password string
	HomePage string
}

type AuthConfig struct {
	Credentials []Credential
	// JWTSecret enables bearer tokens signed with HS256.
	JWTSecret string
	TokenTTL  time.Duration
	// Anonymous lets unauthenticated requests through as the "anonymous" principal.
	Anonymous bool
}

type Principal struct {
	Username string
	HomePage string
	Source   string
}

// Authority is the agent recorded as the authority of statements the
// principal stores.
func (p Principal) Authority() xapi.Actor {
	home := p.HomePage
	if home == "" {
		home = "http://localhost"
	}
	return xapi.AgentFromAccount(p.Username, home, p.Username)
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

type jwtClaims struct {
	jwt.RegisteredClaims
	HomePage string `json:"home_page,omitempty"`
}

func authenticateJWT(token string, secret string) (Principal, error) {
	if strings.TrimSpace(secret) == "" {
		return Principal{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwtClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return Principal{}, err
	}
	if !parsed.Valid {
		return Principal{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return Principal{}, errors.New("subject claim required")
	}
	return Principal{Username: claims.Subject, HomePage: claims.HomePage, Source: "jwt"}, nil
}

func signToken(secret string, p Principal, ttl time.Duration, now time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		HomePage: p.HomePage,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func authenticateBasic(header string, creds []Credential) (Principal, error) {
	user, pass, err := xapi.ParseBasicAuthHeader(header)
	if err != nil {
		return Principal{}, err
	}
	for _, c := range creds {
		if subtle.ConstantTimeCompare([]byte(c.Username), []byte(user)) == 1 &&
			subtle.ConstantTimeCompare([]byte(c.Password), []byte(pass)) == 1 {
			return Principal{Username: c.Username, HomePage: c.HomePage, Source: "basic"}, nil
		}
	}
	return Principal{}, errors.New("unknown credentials")
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func (s *lrs) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !strings.HasPrefix(req.URL.Path, s.basePath+"/") || s.routeIn(req, openRoutes) {
			next.ServeHTTP(w, req)
			return
		}
		authz := strings.TrimSpace(req.Header.Get("Authorization"))
		if authz == "" {
			if s.auth.Anonymous {
				next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), Principal{Username: "anonymous", Source: "anonymous"})))
				return
			}
			w.Header().Set("WWW-Authenticate", `Basic realm="xapi"`)
			respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
			return
		}
		var (
			principal Principal
			err       error
		)
		if token, ok := bearerToken(authz); ok {
			principal, err = authenticateJWT(token, s.auth.JWTSecret)
		} else {
			principal, err = authenticateBasic(authz, s.auth.Credentials)
		}
		if err != nil {
			s.log.Debug().Err(err).Str("path", req.URL.Path).Msg("authentication failed")
			respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
			return
		}
		next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
	})
}

type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

func (s *lrs) registerToken(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "issue-token",
		Method:      http.MethodPost,
		Path:        "/auth/token",
		Summary:     "Exchange Basic credentials for a bearer token",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body TokenResponse `json:"body"`
	}, error) {
		p, ok := principalFromContext(ctx)
		if !ok || p.Source != "basic" {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "basic credentials required", nil)
		}
		ttl := s.auth.TokenTTL
		if ttl <= 0 {
			ttl = time.Hour
		}
		now := s.now()
		token, err := signToken(s.auth.JWTSecret, p, ttl, now)
		if err != nil {
			return nil, badRequest(err.Error(), nil)
		}
		return &struct {
			Body TokenResponse `json:"body"`
		}{Body: TokenResponse{Token: token, ExpiresAt: xapi.FormatTimestamp(now.Add(ttl))}}, nil
	})
}
