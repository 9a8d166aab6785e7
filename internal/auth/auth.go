package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"iot-monitor/internal/config"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const issuer = "iot-monitor"

var (
	ErrUnknownUser     = errors.New("user not found")
	ErrInvalidPassword = errors.New("invalid password")
)

type contextKey struct{}

// Manager issues and checks dashboard session tokens.
type Manager struct {
	secret     []byte
	expiration time.Duration
	users      map[string][]byte // username -> bcrypt hash
}

// NewManager hashes any plain-text passwords from the config once, at startup.
func NewManager(cfg config.AuthConfig) (*Manager, error) {
	m := &Manager{
		secret:     []byte(cfg.JWTSecret),
		expiration: time.Duration(cfg.JWTExpiration) * time.Minute,
		users:      make(map[string][]byte, len(cfg.Users)),
	}
	for _, u := range cfg.Users {
		hash := []byte(u.PasswordHash)
		if len(hash) == 0 {
			if u.Password == "" {
				return nil, fmt.Errorf("user %q has neither password nor password_hash", u.Username)
			}
			var err error
			hash, err = HashPassword(u.Password)
			if err != nil {
				return nil, fmt.Errorf("hashing password for %q: %w", u.Username, err)
			}
		}
		m.users[u.Username] = hash
	}
	return m, nil
}

// Authenticate checks a username/password pair.
func (m *Manager) Authenticate(username, password string) error {
	hash, ok := m.users[username]
	if !ok {
		return ErrUnknownUser
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return ErrInvalidPassword
	}
	return nil
}

func (m *Manager) GenerateToken(username string) (string, error) {
	now := time.Now()
	claims := jwt.StandardClaims{
		Subject:   username,
		Id:        uuid.NewString(),
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(m.expiration).Unix(),
		Issuer:    issuer,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// ValidateToken returns the username the token was issued to.
func (m *Manager) ValidateToken(tokenString string) (string, error) {
	claims := &jwt.StandardClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.Subject == "" {
		return "", errors.New("invalid token")
	}
	if _, ok := m.users[claims.Subject]; !ok {
		return "", ErrUnknownUser
	}
	return claims.Subject, nil
}

// Middleware requires a bearer token in the Authorization header.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return m.middleware(next, false)
}

// WebsocketMiddleware also accepts a "token" query parameter, since browsers cannot set headers on
// websocket upgrades. Mount it on the upgrade route only.
func (m *Manager) WebsocketMiddleware(next http.Handler) http.Handler {
	return m.middleware(next, true)
}

func (m *Manager) middleware(next http.Handler, allowQuery bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var token string
		if allowQuery {
			token = r.URL.Query().Get("token")
		}
		if header := r.Header.Get("Authorization"); header != "" {
			scheme, value, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") {
				unauthorized(w, "Invalid authorization format")
				return
			}
			token = value
		}
		if token == "" {
			unauthorized(w, "Not authenticated")
			return
		}

		username, err := m.ValidateToken(token)
		if err != nil {
			unauthorized(w, "Could not validate credentials")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, username)))
	})
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, msg, http.StatusUnauthorized)
}

// Username returns the authenticated user stored by Middleware.
func Username(ctx context.Context) (string, bool) {
	u, ok := ctx.Value(contextKey{}).(string)
	return u, ok
}

func HashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}
