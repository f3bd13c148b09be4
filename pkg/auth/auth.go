package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/arnavshah/weekly-scheduler-go/pkg/config"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidKey   = errors.New("invalid api key")
)

const bcryptCost = 12

// Claims represents the JWT claims
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Manager issues and verifies admin tokens and API keys.
type Manager struct {
	jwtSecret    []byte
	masterSecret []byte
	tokenTTL     time.Duration
	now          func() time.Time
}

// NewManager builds a Manager from cfg.
func NewManager(cfg *config.AuthConfig) *Manager {
	return &Manager{
		jwtSecret:    []byte(cfg.JWTSecret),
		masterSecret: []byte(cfg.MasterSecret),
		tokenTTL:     cfg.TokenTTL,
		now:          time.Now,
	}
}

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	return string(bytes), err
}

// CheckPasswordHash compares a password with its hash
func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// CreateToken signs an HS256 token for username.
func (m *Manager) CreateToken(username string) (string, error) {
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(m.now()),
			ExpiresAt: jwt.NewNumericDate(m.now().Add(m.tokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.jwtSecret)
}

// VerifyToken parses tokenString and checks its signature and expiry.
func (m *Manager) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return m.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GenerateKey returns an API key of the form "<userID>.<hex hmac>".
func (m *Manager) GenerateKey(userID string) string {
	return userID + "." + m.sign(userID)
}

// VerifyKey checks an API key's signature and returns the user id it was
// issued for.
func (m *Manager) VerifyKey(key string) (string, error) {
	i := strings.LastIndex(key, ".")
	if i <= 0 || i == len(key)-1 {
		return "", fmt.Errorf("%w: bad format", ErrInvalidKey)
	}
	userID, signature := key[:i], key[i+1:]

	// Constant-time comparison.
	if !hmac.Equal([]byte(signature), []byte(m.sign(userID))) {
		return "", fmt.Errorf("%w: bad signature", ErrInvalidKey)
	}
	return userID, nil
}

func (m *Manager) sign(userID string) string {
	h := hmac.New(sha256.New, m.masterSecret)
	h.Write([]byte(userID))
	return hex.EncodeToString(h.Sum(nil))
}

// UserStore is the subset of the repository EnsureAdmin needs.
type UserStore interface {
	CountUsers() (int64, error)
	CreateUser(username, passwordHash string) error
}

// EnsureAdmin creates the bootstrap admin when no admin exists yet. It
// reports whether an account was created.
func EnsureAdmin(store UserStore, username, password string) (bool, error) {
	count, err := store.CountUsers()
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	if password == "" {
		return false, errors.New("no admin account exists and no admin password is configured")
	}

	hash, err := HashPassword(password)
	if err != nil {
		return false, fmt.Errorf("hash admin password: %w", err)
	}
	if err := store.CreateUser(username, hash); err != nil {
		return false, err
	}
	return true, nil
}
