package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"

	"github.com/xenking/order-engine/internal/domain/auth"
	"github.com/xenking/order-engine/internal/domain/cart"
)

// HeaderSessionID identifies the anonymous cart of a caller without a token.
const HeaderSessionID = "X-Session-ID"

// RoleAdmin is the role claim value granting administrator rights.
const RoleAdmin = "admin"

// Claims are the JWT claims the API understands. The subject is the user id.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Security authenticates callers with HS256 bearer tokens.
type Security struct {
	secret []byte
}

// NewSecurity returns a Security verifying tokens signed with secret.
func NewSecurity(secret []byte) *Security {
	return &Security{secret: secret}
}

// Issue signs a token for userID valid for ttl.
func (s *Security) Issue(userID string, admin bool, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if admin {
		claims.Role = RoleAdmin
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}

// Parse verifies token and returns the actor it names.
func (s *Security) Parse(token string) (auth.Actor, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return auth.Actor{}, errors.Wrap(err, "parse token")
	}
	if claims.Subject == "" {
		return auth.Actor{}, errors.New("token has no subject")
	}
	return auth.Actor{ID: claims.Subject, Admin: claims.Role == RoleAdmin}, nil
}

// Authenticate stores the actor of a valid bearer token in the request
// context. Requests without a token pass through anonymously; a malformed,
// expired or forged token is rejected with 401.
func (s *Security) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			abort(c, http.StatusUnauthorized, "unauthenticated", "bearer token required")
			return
		}
		actor, err := s.Parse(strings.TrimSpace(token))
		if err != nil {
			abort(c, http.StatusUnauthorized, "unauthenticated", "invalid token")
			return
		}
		c.Request = c.Request.WithContext(auth.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

func actorOf(c *gin.Context) auth.Actor {
	a, _ := auth.FromContext(c.Request.Context())
	return a
}

// cartOwner is the signed-in user, or the anonymous session cart.
func cartOwner(c *gin.Context) (string, error) {
	if a := actorOf(c); !a.IsZero() {
		return a.ID, nil
	}
	if sid := strings.TrimSpace(c.GetHeader(HeaderSessionID)); sid != "" {
		return cart.SessionOwner(sid), nil
	}
	return "", auth.ErrUnauthenticated
}
