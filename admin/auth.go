package admin

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials signals a wrong username or password.
var ErrInvalidCredentials = errors.New("admin: invalid credentials")

// Authenticator issues and verifies tokens for the single administrative
// account configured through the environment.
type Authenticator struct {
	user         string
	passwordHash string
	secret       []byte
}

func NewAuthenticator(user, passwordHash, jwtSecret string) *Authenticator {
	return &Authenticator{
		user:         user,
		passwordHash: passwordHash,
		secret:       []byte(jwtSecret),
	}
}

// Login checks the credentials and returns a signed token.
func (a *Authenticator) Login(user, password string) (string, error) {
	if user != a.user {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.passwordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	claims := jwt.MapClaims{
		"sub": user,
		"exp": time.Now().Add(24 * time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("admin: sign token: %w", err)
	}
	return token, nil
}

// VerifyToken validates a bearer token and returns its subject.
func (a *Authenticator) VerifyToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("admin: parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("admin: invalid token")
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("admin: invalid subject in token")
	}
	return sub, nil
}

// Middleware guards a route group with bearer-token authentication.
func (a *Authenticator) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "bearer token required"})
		}
		sub, err := a.VerifyToken(raw)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
		}
		c.Set("admin_user", sub)
		return next(c)
	}
}
