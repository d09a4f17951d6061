package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront/internal/domain"
	profilesvc "storefront/internal/service/profile"
)

type signupRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}

type signinRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type authHandlers struct {
	sessions sessionManager
	orders   orderService
	profiles profileService
	cookie   CookieConfig
	logger   *zap.Logger
}

func (h authHandlers) signUp(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.profiles.Signup(c.Request.Context(), profilesvc.SignupInput{
		Username: req.Username,
		Password: req.Password,
		FullName: req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if !h.login(c, p) {
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h authHandlers) signIn(c *gin.Context) {
	var req signinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.profiles.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if !h.login(c, p) {
		return
	}
	c.JSON(http.StatusOK, p)
}

// login reconciles the visitor's orders with the profile, then rotates the
// session id. The basket travels with the session.
func (h authHandlers) login(c *gin.Context, p *domain.Profile) bool {
	ctx := c.Request.Context()
	ident := identityFrom(c)

	if _, err := h.orders.OnLogin(ctx, ident.SessionID, p.ID); err != nil {
		writeError(c, h.logger, err)
		return false
	}
	sid, err := h.sessions.Authenticate(ctx, ident.SessionID, p.ID)
	if err != nil {
		writeError(c, h.logger, err)
		return false
	}
	setSessionCookie(c, h.cookie, sid, h.sessions.TTL())
	setIdentity(c, domain.ProfileIdentity(sid, p.ID))
	return true
}

func (h authHandlers) signOut(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.sessions.Destroy(ctx, identityFrom(c).SessionID); err != nil {
		writeError(c, h.logger, err)
		return
	}
	sid, err := h.sessions.Start(ctx)
	if err != nil {
		clearSessionCookie(c, h.cookie)
		writeError(c, h.logger, err)
		return
	}
	setSessionCookie(c, h.cookie, sid, h.sessions.TTL())
	c.Status(http.StatusOK)
}

func getProfileHandler(svc profileService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := svc.Get(c.Request.Context(), *identityFrom(c).ProfileID)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

func updateProfileHandler(svc profileService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in profilesvc.UpdateInput
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, err)
			return
		}
		p, err := svc.Update(c.Request.Context(), *identityFrom(c).ProfileID, in)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

func changePasswordHandler(svc profileService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in profilesvc.PasswordInput
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, err)
			return
		}
		if err := svc.ChangePassword(c.Request.Context(), *identityFrom(c).ProfileID, in); err != nil {
			writeError(c, logger, err)
			return
		}
		c.Status(http.StatusOK)
	}
}
