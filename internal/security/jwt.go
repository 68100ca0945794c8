package security

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token types carried in the typ claim; a token is only accepted by its own surface.
const (
	TokenTypeUser  = "user"
	TokenTypeAdmin = "admin"
)

const tokenIssuer = "marketforge"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrWrongToken   = errors.New("token not valid for this surface")
)

// Claims are the JWT claims issued to users and admins.
type Claims struct {
	UserID uint64 `json:"userId"`
	Role   string `json:"role"`
	Type   string `json:"typ"`
	jwt.RegisteredClaims
}

// IssueUserToken signs a token for the end-user API.
func IssueUserToken(secret string, userID uint64, role string, ttl time.Duration) (string, time.Time, error) {
	return issue(secret, userID, role, TokenTypeUser, ttl)
}

// IssueAdminToken signs a token for the admin API.
func IssueAdminToken(secret string, userID uint64, role string, ttl time.Duration) (string, time.Time, error) {
	return issue(secret, userID, role, TokenTypeAdmin, ttl)
}

// ParseUserToken validates a user token.
func ParseUserToken(secret, token string) (*Claims, error) {
	return parse(secret, token, TokenTypeUser)
}

// ParseAdminToken validates an admin token.
func ParseAdminToken(secret, token string) (*Claims, error) {
	return parse(secret, token, TokenTypeAdmin)
}

func issue(secret string, userID uint64, role, typ string, ttl time.Duration) (string, time.Time, error) {
	if secret == "" {
		return "", time.Time{}, errors.New("jwt: empty secret")
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("jwt: non-positive ttl")
	}
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: userID,
		Role:   role,
		Type:   typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(userID, 10),
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, errSign := token.SignedString([]byte(secret))
	if errSign != nil {
		return "", time.Time{}, fmt.Errorf("jwt: sign: %w", errSign)
	}
	return signed, expiresAt, nil
}

func parse(secret, raw, typ string) (*Claims, error) {
	claims := &Claims{}
	token, errParse := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithExpirationRequired())
	if errParse != nil {
		if errors.Is(errParse, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid || claims.UserID == 0 {
		return nil, ErrInvalidToken
	}
	if claims.Type != typ {
		return nil, ErrWrongToken
	}
	return claims, nil
}
