package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/marketforge/marketforge/internal/apperr"
	"github.com/marketforge/marketforge/internal/models"
	"github.com/marketforge/marketforge/internal/security"
	internalsettings "github.com/marketforge/marketforge/internal/settings"
	"gorm.io/gorm"
)

// MFAHandler manages the signed-in staff member's TOTP factor.
type MFAHandler struct {
	db *gorm.DB
}

// NewMFAHandler constructs an MFAHandler.
func NewMFAHandler(db *gorm.DB) *MFAHandler {
	return &MFAHandler{db: db}
}

func (h *MFAHandler) loadSelf(c *gin.Context) (*models.User, error) {
	adminID, errID := currentAdminID(c)
	if errID != nil {
		return nil, errID
	}
	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).First(&user, adminID).Error; errFind != nil {
		return nil, apperr.Auth(apperr.CodeUnauthorized, "Not authorized").Wrap(errFind)
	}
	return &user, nil
}

// Status reports whether TOTP is enabled.
func (h *MFAHandler) Status(c *gin.Context) {
	user, errSelf := h.loadSelf(c)
	if errSelf != nil {
		apperr.Respond(c, errSelf)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"totpEnabled": user.TOTPEnabled,
		"totpPending": user.TOTPPendingSecret != "",
	})
}

// PrepareTOTP generates a pending secret that must be confirmed with a code.
func (h *MFAHandler) PrepareTOTP(c *gin.Context) {
	user, errSelf := h.loadSelf(c)
	if errSelf != nil {
		apperr.Respond(c, errSelf)
		return
	}
	issuer := internalsettings.String(internalsettings.SiteNameKey, internalsettings.DefaultSiteName)
	key, errGenerate := security.GenerateTOTP(issuer, user.Email)
	if errGenerate != nil {
		apperr.Respond(c, apperr.Internal(errGenerate))
		return
	}
	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.User{}).
		Where("id = ?", user.ID).
		Update("totp_pending_secret", key.Secret).Error; errUpdate != nil {
		apperr.Respond(c, apperr.Internal(errUpdate))
		return
	}
	c.JSON(http.StatusOK, gin.H{"secret": key.Secret, "otpauthUrl": key.URL})
}

type totpCodeRequest struct {
	Code string `json:"code" binding:"required"`
}

// ConfirmTOTP promotes the pending secret after a valid code.
func (h *MFAHandler) ConfirmTOTP(c *gin.Context) {
	var body totpCodeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apperr.Respond(c, apperr.Validation("code is required"))
		return
	}
	user, errSelf := h.loadSelf(c)
	if errSelf != nil {
		apperr.Respond(c, errSelf)
		return
	}
	if user.TOTPPendingSecret == "" {
		apperr.Respond(c, apperr.Validation("no pending TOTP setup"))
		return
	}
	if !security.ValidateTOTP(user.TOTPPendingSecret, body.Code) {
		apperr.Respond(c, apperr.Validation("invalid TOTP code"))
		return
	}
	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{
			"totp_secret":         user.TOTPPendingSecret,
			"totp_pending_secret": "",
			"totp_enabled":        true,
		}).Error; errUpdate != nil {
		apperr.Respond(c, apperr.Internal(errUpdate))
		return
	}
	c.JSON(http.StatusOK, gin.H{"totpEnabled": true})
}

// DisableTOTP removes the factor after a valid code.
func (h *MFAHandler) DisableTOTP(c *gin.Context) {
	var body totpCodeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apperr.Respond(c, apperr.Validation("code is required"))
		return
	}
	user, errSelf := h.loadSelf(c)
	if errSelf != nil {
		apperr.Respond(c, errSelf)
		return
	}
	if !user.TOTPEnabled {
		apperr.Respond(c, apperr.Validation("TOTP is not enabled"))
		return
	}
	if !security.ValidateTOTP(user.TOTPSecret, body.Code) {
		apperr.Respond(c, apperr.Validation("invalid TOTP code"))
		return
	}
	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{
			"totp_secret":         "",
			"totp_pending_secret": "",
			"totp_enabled":        false,
		}).Error; errUpdate != nil {
		apperr.Respond(c, apperr.Internal(errUpdate))
		return
	}
	c.JSON(http.StatusOK, gin.H{"totpEnabled": false})
}
