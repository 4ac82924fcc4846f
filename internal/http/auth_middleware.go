package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"relay-chat/internal/service"
)

const authClaimsKey = "auth_claims"

// RequireAuth valida el bearer token y guarda claims en el contexto.
// Cualquier falla corta con 401.
func RequireAuth(tokens *service.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := extractClaims(c, tokens)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		c.Set(authClaimsKey, claims)
		c.Next()
	}
}

// OptionalAuth intenta la misma extracción pero ignora en silencio la ausencia
// o invalidez del token: el endpoint funciona anónimo y personaliza si puede.
func OptionalAuth(tokens *service.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, ok := extractClaims(c, tokens); ok {
			c.Set(authClaimsKey, claims)
		}
		c.Next()
	}
}

func extractClaims(c *gin.Context, tokens *service.TokenService) (service.Claims, bool) {
	if tokens == nil {
		return service.Claims{}, false
	}
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return service.Claims{}, false
	}
	token := strings.TrimSpace(header[len("Bearer "):])
	claims, err := tokens.Verify(token, service.KindAccess)
	if err != nil {
		return service.Claims{}, false
	}
	return claims, true
}

// GetAuthClaims obtiene claims desde el contexto.
func GetAuthClaims(c *gin.Context) (service.Claims, bool) {
	val, ok := c.Get(authClaimsKey)
	if !ok {
		return service.Claims{}, false
	}
	claims, ok := val.(service.Claims)
	return claims, ok
}
