package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"paycore/internal/service"
)

type SettingsHandler struct {
	svc *service.SettingsService
}

func NewSettingsHandler(svc *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{svc: svc}
}

func (h *SettingsHandler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": list})
}

func (h *SettingsHandler) Get(c *gin.Context) {
	p, ok := providerParam(c)
	if !ok {
		return
	}
	v, err := h.svc.Get(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// Update replaces a provider's settings. Redacted secrets sent back unchanged are kept.
func (h *SettingsHandler) Update(c *gin.Context) {
	p, ok := providerParam(c)
	if !ok {
		return
	}
	var in service.UpdateSettingInput
	if !bindJSON(c, &in) {
		return
	}
	v, err := h.svc.Update(c.Request.Context(), p, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}
