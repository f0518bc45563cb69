package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/axis-sh/axis/internal/fault"
)

// Principal is an authenticated API caller.
type Principal struct {
	Owner      string
	Plan       string
	ValidUntil time.Time // zero for API keys, which do not expire
}

const apiKeyPrefix = "sk_sc_"

// withAuth wraps a handler with bearer authentication. Tokens are
// either a raw API key (prefix sk_sc_) resolved through the policy key
// table, or an HS256 session JWT signed with the app session secret.
func (h *Handler) withAuth(next func(http.ResponseWriter, *http.Request, *Principal)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := h.authenticate(r)
		if err != nil {
			h.writeError(w, err)
			return
		}
		next(w, r, p)
	}
}

func (h *Handler) authenticate(r *http.Request) (*Principal, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, fault.New(fault.Unauthorized, "missing Authorization header")
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return nil, fault.New(fault.Unauthorized, "malformed Authorization header")
	}

	if strings.HasPrefix(token, apiKeyPrefix) {
		entry, ok := h.policy.LookupAPIKey(token)
		if !ok {
			return nil, fault.New(fault.Unauthorized, "unknown API key")
		}
		return &Principal{Owner: entry.Owner, Plan: entry.Plan}, nil
	}

	secret := h.policy.SessionSecret()
	if secret == "" {
		return nil, fault.New(fault.NotConfigured, "session secret is not configured")
	}
	return parseSessionToken(token, secret)
}

func parseSessionToken(token, secret string) (*Principal, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return nil, fault.Wrap(fault.Unauthorized, err, "invalid session token")
	}
	p := &Principal{Plan: "free"}
	if sub, err := claims.GetSubject(); err == nil {
		p.Owner = sub
	}
	if p.Owner == "" {
		return nil, fault.New(fault.Unauthorized, "session token has no subject")
	}
	if plan, ok := claims["plan"].(string); ok && plan != "" {
		p.Plan = plan
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		p.ValidUntil = exp.Time
	}
	return p, nil
}

// IssueSessionToken signs a session JWT for owner. Used by the login
// flow upstream of this service and by tests.
func IssueSessionToken(secret, owner, plan string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  owner,
		"plan": plan,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}
