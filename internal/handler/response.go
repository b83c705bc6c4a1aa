package handler

import (
	"github.com/gin-gonic/gin"

	"paycore/internal/apperr"
	"paycore/internal/domain"
)

func respondError(c *gin.Context, err error) {
	body := gin.H{"error": apperr.PublicMessage(err), "code": apperr.KindOf(err)}
	if e, ok := apperr.As(err); ok && e.Field != "" {
		body["field"] = e.Field
	}
	c.JSON(apperr.HTTPStatus(err), body)
}

// providerParam resolves :provider and answers 404 for names no adapter serves.
func providerParam(c *gin.Context) (domain.Provider, bool) {
	p, ok := domain.ParseProvider(c.Param("provider"))
	if !ok {
		respondError(c, apperr.Newf(apperr.NotFound, "unknown payment provider %q", c.Param("provider")))
		return "", false
	}
	return p, true
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, apperr.Wrap(apperr.Invalid, "invalid request body: "+err.Error(), err))
		return false
	}
	return true
}
