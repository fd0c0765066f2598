package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/annel0/climate-coil/internal/auth"
)

// RequireToken проверяет JWT в заголовке Authorization: Bearer <token>.
// Имя оператора кладётся в контекст под ключом "operator".
func RequireToken(issuer *auth.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Отсутствует токен авторизации"})
			return
		}

		// Проверяем формат "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Неверный формат токена"})
			return
		}

		operator, err := issuer.Validate(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Недействительный токен"})
			return
		}

		c.Set("operator", operator)
		c.Next()
	}
}
