package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/secondfactor/config"
	"github.com/tech-arch1tect/secondfactor/services/emailotp"
	"github.com/tech-arch1tect/secondfactor/services/enrollment"
	"github.com/tech-arch1tect/secondfactor/services/logging"
	"github.com/tech-arch1tect/secondfactor/services/stepup"
	"go.uber.org/zap"
)

// UserIDContextKey is where the embedding application's auth middleware
// must place the already-authenticated user id. This package never
// authenticates anyone itself.
const UserIDContextKey = "secondfactor.user_id"

const sessionTTL = 30 * time.Minute

type MFAHandler struct {
	config     *config.Config
	enrollment *enrollment.Service
	gate       *stepup.Service
	logger     *logging.Service
	sessions   *sessionCache
	cooldown   *cooldownStore
}

func NewMFAHandler(cfg *config.Config, enrollSvc *enrollment.Service, gate *stepup.Service, logger *logging.Service) *MFAHandler {
	return &MFAHandler{
		config:     cfg,
		enrollment: enrollSvc,
		gate:       gate,
		logger:     logger,
		sessions:   newSessionCache(sessionTTL),
		cooldown:   newCooldownStore(),
	}
}

func (h *MFAHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/enroll", h.BeginEnrollment)
	g.POST("/enroll/:session/app", h.ConfirmAppCode)
	g.POST("/enroll/:session/email", h.ConfirmEmailCode)
	g.POST("/enroll/:session/resend", h.ResendEmailCode)
	g.GET("/stepup/methods", h.StepUpMethods)
	g.POST("/stepup/email", h.SendStepUpEmail)
	g.POST("/stepup", h.StepUp)
	g.POST("/disable", h.Disable)
}

func userID(c echo.Context) (string, bool) {
	id, ok := c.Get(UserIDContextKey).(string)
	return id, ok && id != ""
}

func errorJSON(c echo.Context, status int, code, description string) error {
	return c.JSON(status, map[string]string{
		"error":             code,
		"error_description": description,
	})
}

type beginEnrollmentRequest struct {
	WantsApp   bool   `json:"wants_app"`
	WantsEmail bool   `json:"wants_email"`
	Email      string `json:"email"`
}

type beginEnrollmentResponse struct {
	SessionID       string `json:"session_id"`
	State           string `json:"state"`
	Secret          string `json:"secret,omitempty"`
	ProvisioningURI string `json:"provisioning_uri,omitempty"`
}

func (h *MFAHandler) BeginEnrollment(c echo.Context) error {
	uid, ok := userID(c)
	if !ok {
		return errorJSON(c, http.StatusUnauthorized, "unauthenticated", "missing user identity")
	}

	var req beginEnrollmentRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid_request", "invalid JSON body")
	}

	sess, err := h.enrollment.Begin(uid, enrollment.Selection{
		WantsApp:   req.WantsApp,
		WantsEmail: req.WantsEmail,
		Email:      req.Email,
	})
	if err != nil && sess == nil {
		switch {
		case errors.Is(err, enrollment.ErrNoMethodSelected), errors.Is(err, enrollment.ErrEmailRequired):
			return errorJSON(c, http.StatusBadRequest, "invalid_selection", err.Error())
		case errors.Is(err, enrollment.ErrAlreadyEnabled):
			return errorJSON(c, http.StatusConflict, "already_enabled", err.Error())
		default:
			h.logger.Error("enrollment begin failed", zap.Error(err), zap.String("user_id", uid))
			return errorJSON(c, http.StatusInternalServerError, "server_error", "failed to start enrollment")
		}
	}

	h.sessions.Put(sess)
	if req.WantsEmail {
		h.cooldown.Allow(uid, h.config.EmailOTP.ResendCooldown)
	}

	if err != nil {
		// Session survives a delivery failure so the caller can resend.
		if errors.Is(err, emailotp.ErrDeliveryFailed) {
			return errorJSON(c, http.StatusBadGateway, "delivery_failed", "could not send the verification email")
		}
		h.logger.Error("enrollment begin failed", zap.Error(err), zap.String("user_id", uid))
		return errorJSON(c, http.StatusInternalServerError, "server_error", "failed to start enrollment")
	}

	return c.JSON(http.StatusOK, beginEnrollmentResponse{
		SessionID:       sess.ID,
		State:           string(sess.State),
		Secret:          sess.TotpSecret,
		ProvisioningURI: sess.ProvisioningURI,
	})
}

type codeRequest struct {
	Code string `json:"code"`
}

type enrollmentProgressResponse struct {
	State             string   `json:"state"`
	BackupCodes       []string `json:"backup_codes,omitempty"`
	RemainingAttempts *int     `json:"remaining_attempts,omitempty"`
}

func (h *MFAHandler) ConfirmAppCode(c echo.Context) error {
	uid, ok := userID(c)
	if !ok {
		return errorJSON(c, http.StatusUnauthorized, "unauthenticated", "missing user identity")
	}

	sess := h.sessions.Get(c.Param("session"), uid)
	if sess == nil {
		return errorJSON(c, http.StatusNotFound, "session_not_found", "enrollment session not found or expired")
	}

	var req codeRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid_request", "invalid JSON body")
	}

	activation, err := h.enrollment.ConfirmApp(sess, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, enrollment.ErrIncorrectAppCode):
			return errorJSON(c, http.StatusBadRequest, "incorrect_code", "the authenticator code is incorrect")
		case errors.Is(err, enrollment.ErrInvalidState):
			return errorJSON(c, http.StatusConflict, "invalid_state", err.Error())
		case errors.Is(err, emailotp.ErrDeliveryFailed):
			return errorJSON(c, http.StatusBadGateway, "delivery_failed", "could not send the verification email")
		default:
			h.logger.Error("app code confirmation failed", zap.Error(err), zap.String("user_id", uid))
			return errorJSON(c, http.StatusInternalServerError, "server_error", "failed to confirm code")
		}
	}

	if sess.State == enrollment.StateEmailVerify {
		h.cooldown.Allow(uid, h.config.EmailOTP.ResendCooldown)
	}

	response := enrollmentProgressResponse{State: string(sess.State)}
	if activation != nil {
		response.BackupCodes = activation.BackupCodes
		h.sessions.Delete(sess.ID)
	}
	return c.JSON(http.StatusOK, response)
}

func (h *MFAHandler) ConfirmEmailCode(c echo.Context) error {
	uid, ok := userID(c)
	if !ok {
		return errorJSON(c, http.StatusUnauthorized, "unauthenticated", "missing user identity")
	}

	sess := h.sessions.Get(c.Param("session"), uid)
	if sess == nil {
		return errorJSON(c, http.StatusNotFound, "session_not_found", "enrollment session not found or expired")
	}

	var req codeRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid_request", "invalid JSON body")
	}

	activation, remaining, err := h.enrollment.ConfirmEmail(sess, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, emailotp.ErrIncorrectCode):
			return c.JSON(http.StatusBadRequest, enrollmentProgressResponse{
				State:             string(sess.State),
				RemainingAttempts: &remaining,
			})
		case errors.Is(err, emailotp.ErrInvalidInput):
			return errorJSON(c, http.StatusBadRequest, "invalid_code_format", err.Error())
		case errors.Is(err, emailotp.ErrExpired):
			return errorJSON(c, http.StatusBadRequest, "code_expired", err.Error())
		case errors.Is(err, emailotp.ErrTooManyAttempts):
			return errorJSON(c, http.StatusBadRequest, "too_many_attempts", err.Error())
		case errors.Is(err, emailotp.ErrNoPendingCode):
			return errorJSON(c, http.StatusBadRequest, "no_pending_code", err.Error())
		case errors.Is(err, enrollment.ErrInvalidState):
			return errorJSON(c, http.StatusConflict, "invalid_state", err.Error())
		default:
			h.logger.Error("email code confirmation failed", zap.Error(err), zap.String("user_id", uid))
			return errorJSON(c, http.StatusInternalServerError, "server_error", "failed to confirm code")
		}
	}

	response := enrollmentProgressResponse{State: string(sess.State)}
	if activation != nil {
		response.BackupCodes = activation.BackupCodes
		h.sessions.Delete(sess.ID)
	}
	return c.JSON(http.StatusOK, response)
}

func (h *MFAHandler) ResendEmailCode(c echo.Context) error {
	uid, ok := userID(c)
	if !ok {
		return errorJSON(c, http.StatusUnauthorized, "unauthenticated", "missing user identity")
	}

	sess := h.sessions.Get(c.Param("session"), uid)
	if sess == nil {
		return errorJSON(c, http.StatusNotFound, "session_not_found", "enrollment session not found or expired")
	}

	if allowed, wait := h.cooldown.Allow(uid, h.config.EmailOTP.ResendCooldown); !allowed {
		c.Response().Header().Set("Retry-After", wait.Round(time.Second).String())
		return errorJSON(c, http.StatusTooManyRequests, "cooldown", "wait before requesting another code")
	}

	if err := h.enrollment.ResendEmail(sess); err != nil {
		switch {
		case errors.Is(err, enrollment.ErrInvalidState):
			return errorJSON(c, http.StatusConflict, "invalid_state", err.Error())
		case errors.Is(err, emailotp.ErrDeliveryFailed):
			return errorJSON(c, http.StatusBadGateway, "delivery_failed", "could not send the verification email")
		default:
			h.logger.Error("email code resend failed", zap.Error(err), zap.String("user_id", uid))
			return errorJSON(c, http.StatusInternalServerError, "server_error", "failed to resend code")
		}
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *MFAHandler) StepUpMethods(c echo.Context) error {
	uid, ok := userID(c)
	if !ok {
		return errorJSON(c, http.StatusUnauthorized, "unauthenticated", "missing user identity")
	}

	methods, err := h.gate.Methods(uid)
	if err != nil {
		h.logger.Error("failed to list step-up methods", zap.Error(err), zap.String("user_id", uid))
		return errorJSON(c, http.StatusInternalServerError, "server_error", "failed to list methods")
	}

	return c.JSON(http.StatusOK, map[string]any{"methods": methods})
}

func (h *MFAHandler) SendStepUpEmail(c echo.Context) error {
	uid, ok := userID(c)
	if !ok {
		return errorJSON(c, http.StatusUnauthorized, "unauthenticated", "missing user identity")
	}

	if allowed, wait := h.cooldown.Allow(uid, h.config.EmailOTP.ResendCooldown); !allowed {
		c.Response().Header().Set("Retry-After", wait.Round(time.Second).String())
		return errorJSON(c, http.StatusTooManyRequests, "cooldown", "wait before requesting another code")
	}

	if err := h.gate.SendEmailCode(uid); err != nil {
		switch {
		case errors.Is(err, stepup.ErrNotConfigured):
			return errorJSON(c, http.StatusConflict, "not_configured", err.Error())
		case errors.Is(err, stepup.ErrMethodUnavailable):
			return errorJSON(c, http.StatusConflict, "method_unavailable", err.Error())
		case errors.Is(err, emailotp.ErrDeliveryFailed):
			return errorJSON(c, http.StatusBadGateway, "delivery_failed", "could not send the verification email")
		default:
			h.logger.Error("step-up email send failed", zap.Error(err), zap.String("user_id", uid))
			return errorJSON(c, http.StatusInternalServerError, "server_error", "failed to send code")
		}
	}

	return c.NoContent(http.StatusNoContent)
}

type stepUpRequest struct {
	Method string `json:"method"`
	Code   string `json:"code"`
}

type stepUpResponse struct {
	Verified          bool   `json:"verified"`
	Reason            string `json:"reason,omitempty"`
	Method            string `json:"method,omitempty"`
	Token             string `json:"token,omitempty"`
	RemainingAttempts int    `json:"remaining_attempts,omitempty"`
}

func (h *MFAHandler) StepUp(c echo.Context) error {
	uid, ok := userID(c)
	if !ok {
		return errorJSON(c, http.StatusUnauthorized, "unauthenticated", "missing user identity")
	}

	var req stepUpRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid_request", "invalid JSON body")
	}

	result, err := h.gate.RequireStepUp(uid, stepup.Method(req.Method), req.Code)
	if err != nil {
		h.logger.Error("step-up failed", zap.Error(err), zap.String("user_id", uid))
		return errorJSON(c, http.StatusInternalServerError, "server_error", "failed to verify")
	}

	status := http.StatusOK
	if !result.Verified {
		status = http.StatusForbidden
	}
	return c.JSON(status, stepUpResponse{
		Verified:          result.Verified,
		Reason:            string(result.Reason),
		Method:            string(result.Method),
		Token:             result.Token,
		RemainingAttempts: result.RemainingAttempts,
	})
}

func (h *MFAHandler) Disable(c echo.Context) error {
	uid, ok := userID(c)
	if !ok {
		return errorJSON(c, http.StatusUnauthorized, "unauthenticated", "missing user identity")
	}

	var req stepUpRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid_request", "invalid JSON body")
	}

	result, err := h.gate.Disable(uid, stepup.Method(req.Method), req.Code)
	if err != nil {
		h.logger.Error("MFA disable failed", zap.Error(err), zap.String("user_id", uid))
		return errorJSON(c, http.StatusInternalServerError, "server_error", "failed to disable MFA")
	}

	status := http.StatusOK
	if !result.Verified {
		status = http.StatusForbidden
	}
	return c.JSON(status, stepUpResponse{
		Verified: result.Verified,
		Reason:   string(result.Reason),
		Method:   string(result.Method),
	})
}
