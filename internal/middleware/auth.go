package middleware

import (
	"net/http"
	"strings"

	"github.com/SergeiKhy/linkhub/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const subjectKey = "auth_subject"

// AuthConfig конфигурация JWT аутентификации
type AuthConfig struct {
	// Secret ключ подписи HS256 токенов
	Secret string
	// Optional если true, запросы без токена проходят дальше (без субъекта в контексте)
	Optional bool
}

// institutionalClaims клеймы токена, который выдаёт SSO шлюз
type institutionalClaims struct {
	NetID     string `json:"netid"`
	Admin     bool   `json:"admin"`
	PowerUser bool   `json:"power_user"`
	jwt.RegisteredClaims
}

// Auth middleware для аутентификации по JWT bearer токену
type Auth struct {
	config AuthConfig
}

// NewAuth создаёт новый auth middleware
func NewAuth(config AuthConfig) *Auth {
	return &Auth{config: config}
}

// Middleware возвращает Gin middleware handler для JWT аутентификации
func (a *Auth) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			if a.config.Optional {
				c.Next()
				return
			}
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "missing_token",
				"message": "Требуется bearer токен в заголовке Authorization",
			})
			c.Abort()
			return
		}

		claims := &institutionalClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(a.config.Secret), nil
		})
		if err != nil || !token.Valid || claims.NetID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_token",
				"message": "Невалидный или просроченный токен",
			})
			c.Abort()
			return
		}

		c.Set(subjectKey, models.Subject{
			NetID:     claims.NetID,
			Admin:     claims.Admin,
			PowerUser: claims.PowerUser,
		})

		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

// SubjectFromContext извлекает аутентифицированного субъекта из контекста
func SubjectFromContext(c *gin.Context) (models.Subject, bool) {
	v, exists := c.Get(subjectKey)
	if !exists {
		return models.Subject{}, false
	}
	subject, ok := v.(models.Subject)
	return subject, ok
}
