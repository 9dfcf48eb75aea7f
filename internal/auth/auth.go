// Package auth verifies bearer tokens and carries the caller identity
// through request contexts.
package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"

	"github.com/makehive/marketplace/internal/apperr"
	"github.com/makehive/marketplace/internal/domain/user"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Role   user.Role
}

// IsAdmin reports whether the caller has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == user.RoleAdmin }

// Claims is the JWT payload. Tokens minted by the legacy sign-up flow carry
// the user id in "id" instead of "sub".
type Claims struct {
	jwt.RegisteredClaims
	Role   user.Role `json:"role,omitempty"`
	UserID string    `json:"id,omitempty"`
}

// SubjectID returns the user id carried by the claims.
func (c *Claims) SubjectID() string {
	if c.RegisteredClaims.Subject != "" {
		return c.RegisteredClaims.Subject
	}
	return c.UserID
}

var (
	errMissingToken = apperr.Auth("no token, authorization denied")
	errInvalidToken = apperr.Auth("token is not valid")
)

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored in ctx.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Verifier validates HS256 tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier creates a Verifier. When issuer is non-empty tokens must carry
// a matching "iss" claim.
func NewVerifier(secret []byte, issuer string) *Verifier {
	return &Verifier{secret: secret, issuer: issuer}
}

// Verify parses token and returns the principal it names.
func (v *Verifier) Verify(token string) (Principal, error) {
	var claims Claims
	var opts []jwt.ParserOption
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	tkn, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected sign method")
		}
		return v.secret, nil
	}, opts...)
	if err != nil || !tkn.Valid {
		return Principal{}, errInvalidToken
	}
	sub := claims.SubjectID()
	if sub == "" {
		return Principal{}, errInvalidToken
	}
	role := claims.Role
	if role == "" {
		role = user.RoleUser
	}
	return Principal{UserID: sub, Role: role}, nil
}

// Authenticate verifies the bearer token of r.
func (v *Verifier) Authenticate(r *http.Request) (Principal, error) {
	token := bearer(r)
	if token == "" {
		return Principal{}, errMissingToken
	}
	return v.Verify(token)
}

// Middleware rejects requests without a valid bearer token and stores the
// caller in the request context.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := v.Authenticate(r)
		if err != nil {
			apperr.WriteHTTP(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// RequireAdmin rejects callers without the admin role. It must run after
// Middleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := FromContext(r.Context())
		if !ok {
			apperr.WriteHTTP(w, r, errMissingToken)
			return
		}
		if !p.IsAdmin() {
			apperr.WriteHTTP(w, r, apperr.Forbidden("admin access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearer extracts the token from the Authorization header. The "Bearer "
// prefix is optional.
func bearer(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		h = h[7:]
	}
	return strings.TrimSpace(h)
}

// Signer mints HS256 tokens.
type Signer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewSigner creates a Signer.
func NewSigner(secret []byte, issuer string) *Signer {
	return &Signer{secret: secret, issuer: issuer, now: time.Now}
}

// Sign returns a token for userID with the given role valid for ttl.
func (s *Signer) Sign(userID string, role user.Role, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}
