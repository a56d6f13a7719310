package middleware

import (
	"slices"

	"github.com/gin-gonic/gin"

	"fastap/internal/adapter/http/helper"
	"fastap/internal/core/domain"
	"fastap/internal/core/port"
	"fastap/pkg/config"
	ct "fastap/pkg/context"
)

const accountKey = "account"

const msgAccessDenied = "Acceso no autorizado."

// Session resolves the authorization cookie to an active account and attaches
// it to the request. Requests without a valid session are aborted.
func Session(accounts port.AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		account, err := accounts.Authenticate(c.Request.Context(), helper.SessionValue(c))

		if err != nil {
			helper.AbortWithAppError(c, err)
			return
		}

		SetAccount(c, *account)

		c.Next()
	}
}

// SetAccount stores the authenticated account on the gin and request contexts.
func SetAccount(c *gin.Context, account domain.Account) {
	c.Set(accountKey, account)
	c.Set(config.AccountKey, account.ID)
	c.Request = c.Request.WithContext(ct.WithAccount(c.Request.Context(), account))
}

func CurrentAccount(c *gin.Context) (*domain.Account, bool) {
	value, ok := c.Get(accountKey)

	if !ok {
		return nil, false
	}

	account, ok := value.(domain.Account)

	if !ok {
		return nil, false
	}

	return &account, true
}

// RequireRole lets the request through only when Session attached an account
// holding one of roles.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		account, ok := CurrentAccount(c)

		if !ok || !slices.Contains(roles, account.Role) {
			helper.AbortWithAppError(c, domain.NewForbiddenError(msgAccessDenied))
			return
		}

		c.Next()
	}
}

func IsAdmin() gin.HandlerFunc {
	return RequireRole(domain.RoleAdmin)
}

func IsUser() gin.HandlerFunc {
	return RequireRole(domain.RoleRegular)
}
