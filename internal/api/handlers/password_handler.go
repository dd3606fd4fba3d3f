package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Marga-Ghale/hdss-admin-backend/internal/models"
	"github.com/Marga-Ghale/hdss-admin-backend/internal/service"
)

type PasswordHandler struct{}

// Generate returns a random password the admin can hand to an applicant.
func (h *PasswordHandler) Generate(c *gin.Context) {
	password, err := service.GeneratePassword()
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate password"})
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, models.GeneratedPasswordResponse{Password: password})
}
