package transport

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/redlinehq/redline/internal/config"
	"github.com/redlinehq/redline/model"
)

// SessionAuthenticator returns middleware that verifies the owner session
// JWT from the Authorization header and stores an ActorContext in the
// request context. Sessions are HMAC-signed tokens issued by this service
// itself; every authenticated session belongs to the disclosing party.
func SessionAuthenticator(secret []byte, cfg config.IdentityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				WriteError(w, r, model.NewUnauthorizedError("Missing authorization header"))
				return
			}
			if !strings.HasPrefix(auth, "Bearer ") {
				WriteError(w, r, model.NewUnauthorizedError("Invalid authorization header format"))
				return
			}
			tokenStr := auth[7:]

			token, err := jwt.Parse(tokenStr,
				func(token *jwt.Token) (any, error) {
					return secret, nil
				},
				jwt.WithValidMethods([]string{"HS256"}),
				jwt.WithIssuer(cfg.Issuer),
				jwt.WithAudience(cfg.Audience),
				jwt.WithLeeway(30*time.Second),
				jwt.WithExpirationRequired(),
			)
			if err != nil {
				WriteError(w, r, model.NewUnauthorizedError(classifyJWTError(err)))
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok || !token.Valid {
				WriteError(w, r, model.NewUnauthorizedError("Invalid token"))
				return
			}

			sub, _ := claims["sub"].(string)
			email, _ := claims["email"].(string)
			if sub == "" {
				WriteError(w, r, model.NewUnauthorizedError("Invalid token"))
				return
			}

			actor := &model.ActorContext{
				SubjectID:     sub,
				Email:         email,
				Role:          model.RolePartyA,
				CorrelationID: CorrelationIDFrom(r.Context()),
			}
			ctx := model.WithActorContext(r.Context(), actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// MintSessionToken issues a signed owner session token. There is no login
// route; operators mint sessions out of band and hand them to document
// owners.
func MintSessionToken(secret []byte, cfg config.IdentityConfig, subjectID, email string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   cfg.Issuer,
		"aud":   cfg.Audience,
		"sub":   subjectID,
		"email": email,
		"iat":   now.Unix(),
		"exp":   now.Add(cfg.SessionTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func classifyJWTError(err error) string {
	s := err.Error()
	switch {
	case strings.Contains(s, "expired"):
		return "Token expired"
	case strings.Contains(s, "issuer"):
		return "Invalid token issuer"
	case strings.Contains(s, "audience"):
		return "Invalid token audience"
	case strings.Contains(s, "signing method"):
		return "Disallowed signing algorithm"
	case strings.Contains(s, "signature"):
		return "Invalid token signature"
	default:
		return "Invalid token"
	}
}
