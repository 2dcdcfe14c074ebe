package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/orrn/labelgate/internal/db"
	"github.com/orrn/labelgate/internal/logging"
)

const (
	cookieName = "labelgate_auth"
	issuer     = "labelgate"
)

type Claims struct {
	jwt.RegisteredClaims
	Authenticated bool `json:"authenticated"`
}

// AuditSink receives login events. db.Audit satisfies it.
type AuditSink interface {
	CreateAuditLog(ctx context.Context, log *db.AuditLog) error
}

type AuthConfig struct {
	Enabled       bool
	PasswordHash  string
	JWTSecret     string
	TokenDuration time.Duration
}

type AuthMiddleware struct {
	enabled       bool
	passwordHash  []byte
	secret        []byte
	tokenDuration time.Duration
	audit         AuditSink
}

type LoginRequest struct {
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Token   string `json:"token,omitempty"`
}

type StatusResponse struct {
	Authenticated bool `json:"authenticated"`
	AuthEnabled   bool `json:"auth_enabled"`
}

func NewAuthMiddleware(cfg AuthConfig, audit AuditSink) (*AuthMiddleware, error) {
	if cfg.Enabled {
		if cfg.PasswordHash == "" || cfg.JWTSecret == "" {
			return nil, errors.New("auth enabled without password hash or jwt secret")
		}
		if _, err := bcrypt.Cost([]byte(cfg.PasswordHash)); err != nil {
			return nil, errors.New("auth password hash is not a bcrypt hash")
		}
	}
	if cfg.TokenDuration <= 0 {
		cfg.TokenDuration = 24 * time.Hour
	}

	return &AuthMiddleware{
		enabled:       cfg.Enabled,
		passwordHash:  []byte(cfg.PasswordHash),
		secret:        []byte(cfg.JWTSecret),
		tokenDuration: cfg.TokenDuration,
		audit:         audit,
	}, nil
}

func (a *AuthMiddleware) generateToken() (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenDuration)),
			Issuer:    issuer,
		},
		Authenticated: true,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *AuthMiddleware) validateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

func (a *AuthMiddleware) getTokenFromRequest(c *gin.Context) string {
	if cookie, err := c.Cookie(cookieName); err == nil && cookie != "" {
		return cookie
	}

	if authHeader := c.GetHeader("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

func (a *AuthMiddleware) setAuthCookie(c *gin.Context, token string) {
	c.SetCookie(cookieName, token, int(a.tokenDuration.Seconds()), "/", "", true, true)
}

func (a *AuthMiddleware) clearAuthCookie(c *gin.Context) {
	c.SetCookie(cookieName, "", -1, "/", "", true, true)
}

func (a *AuthMiddleware) recordAudit(c *gin.Context, action, details string) {
	if a.audit == nil {
		return
	}
	entry := &db.AuditLog{Action: action, IPAddress: c.ClientIP(), Details: details}
	if err := a.audit.CreateAuditLog(c.Request.Context(), entry); err != nil {
		logging.WithComponent("auth").Warn().Str("action", action).Err(err).Msg("failed to write audit log")
	}
}

func (a *AuthMiddleware) LoginHandler(c *gin.Context) {
	if !a.enabled {
		c.JSON(http.StatusOK, LoginResponse{Success: true, Message: "Authentication disabled"})
		return
	}

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, LoginResponse{Success: false, Message: "Invalid request"})
		return
	}

	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(req.Password)); err != nil {
		a.recordAudit(c, "auth.login_failed", "invalid password")
		c.JSON(http.StatusUnauthorized, LoginResponse{Success: false, Message: "Invalid password"})
		return
	}

	token, err := a.generateToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, LoginResponse{Success: false, Message: "Failed to generate token"})
		return
	}

	a.recordAudit(c, "auth.login", "")
	a.setAuthCookie(c, token)
	c.JSON(http.StatusOK, LoginResponse{Success: true, Token: token})
}

func (a *AuthMiddleware) LogoutHandler(c *gin.Context) {
	a.clearAuthCookie(c)
	c.JSON(http.StatusOK, LoginResponse{Success: true, Message: "Logged out"})
}

func (a *AuthMiddleware) StatusHandler(c *gin.Context) {
	if !a.enabled {
		c.JSON(http.StatusOK, StatusResponse{Authenticated: true, AuthEnabled: false})
		return
	}

	token := a.getTokenFromRequest(c)
	if token == "" {
		c.JSON(http.StatusOK, StatusResponse{Authenticated: false, AuthEnabled: true})
		return
	}

	claims, err := a.validateToken(token)
	if err != nil {
		c.JSON(http.StatusOK, StatusResponse{Authenticated: false, AuthEnabled: true})
		return
	}
	c.JSON(http.StatusOK, StatusResponse{Authenticated: claims.Authenticated, AuthEnabled: true})
}

// RequireAuth is a no-op when authentication is disabled.
func (a *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.enabled {
			c.Next()
			return
		}

		token := a.getTokenFromRequest(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "Authentication required"})
			return
		}

		claims, err := a.validateToken(token)
		if err != nil || !claims.Authenticated {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "Invalid or expired token"})
			return
		}

		c.Set("authenticated", true)
		c.Set("claims", claims)
		c.Next()
	}
}
