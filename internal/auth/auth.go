package auth

import (
	"context"
	"dream-san/internal/config"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const UserContextKey contextKey = "user"

var (
	ErrMissingToken  = errors.New("missing authorization header")
	ErrInvalidHeader = errors.New("invalid authorization header format")
	ErrInvalidClaims = errors.New("token is missing required claims")
)

// Claims are carried by session tokens issued by this service
type Claims struct {
	UserID string `json:"uid"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// ProviderClaims are read from identity-provider access tokens
type ProviderClaims struct {
	Email      string `json:"email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Picture    string `json:"picture"`
	jwt.RegisteredClaims
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// sendError sends a standardized JSON error response
func sendError(w http.ResponseWriter, status int, message string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	errResp := ErrorResponse{
		Code:    status,
		Message: message,
	}
	if err != nil {
		errResp.Error = err.Error()
	}
	json.NewEncoder(w).Encode(errResp)
}

// TokenService issues and validates HS256 session tokens and verifies provider tokens
type TokenService struct {
	secret         []byte
	expiration     time.Duration
	providerSecret []byte
	providerName   string
	now            func() time.Time
}

func NewTokenService(cfg *config.AuthConfig) *TokenService {
	expiration := cfg.TokenExpiration
	if expiration <= 0 {
		expiration = 24 * time.Hour
	}
	return &TokenService{
		secret:         cfg.JWTSecret,
		expiration:     expiration,
		providerSecret: cfg.ProviderSecret,
		providerName:   cfg.ProviderName,
		now:            time.Now,
	}
}

// ProviderName identifies the external identity provider
func (s *TokenService) ProviderName() string {
	return s.providerName
}

func (s *TokenService) GenerateToken(userID, email string) (string, error) {
	now := s.now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *TokenService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, hmacKey(s.secret),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	if claims.UserID == "" {
		return nil, ErrInvalidClaims
	}
	return claims, nil
}

// VerifyProviderToken validates an identity-provider access token signed with the shared provider secret
func (s *TokenService) VerifyProviderToken(tokenString string) (*ProviderClaims, error) {
	if len(s.providerSecret) == 0 {
		return nil, fmt.Errorf("identity provider secret not configured")
	}

	claims := &ProviderClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, hmacKey(s.providerSecret),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	if claims.Subject == "" || claims.Email == "" {
		return nil, ErrInvalidClaims
	}
	return claims, nil
}

func hmacKey(secret []byte) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}
}

// BearerToken extracts the token from an Authorization header
func BearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", ErrMissingToken
	}

	bearerToken := strings.Split(authHeader, " ")
	if len(bearerToken) != 2 || bearerToken[0] != "Bearer" || bearerToken[1] == "" {
		return "", ErrInvalidHeader
	}
	return bearerToken[1], nil
}

// Middleware rejects requests without a valid session token and stores the claims in the context
func (s *TokenService) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := BearerToken(r)
		if err != nil {
			sendError(w, http.StatusUnauthorized, "Unauthorized", err)
			return
		}

		claims, err := s.ValidateToken(tokenString)
		if err != nil {
			sendError(w, http.StatusUnauthorized, "Invalid token", err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	}
}

func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, UserContextKey, claims)
}

// ClaimsFromContext returns the claims placed by Middleware
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(UserContextKey).(*Claims)
	return claims, ok && claims != nil
}
