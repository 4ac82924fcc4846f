package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"relay-chat/internal/domain"
	"relay-chat/internal/service"
)

const refreshCookieName = "refreshToken"

// CookieConfig es la línea base de seguridad para la cookie de refresh.
type CookieConfig struct {
	Domain string
	Secure bool
	MaxAge int
}

// AuthHandler mantiene dependencias para los endpoints de autenticación.
type AuthHandler struct {
	logger     *zap.Logger
	authServ   *service.AuthService
	verifyServ *service.VerifyService
	cookies    CookieConfig
	production bool
}

// NewAuthHandler crea una instancia de AuthHandler con dependencias necesarias.
func NewAuthHandler(logger *zap.Logger, authServ *service.AuthService, verifyServ *service.VerifyService, cookies CookieConfig, production bool) *AuthHandler {
	return &AuthHandler{
		logger:     logger,
		authServ:   authServ,
		verifyServ: verifyServ,
		cookies:    cookies,
		production: production,
	}
}

// Signup maneja POST /api/auth/signup.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req struct {
		FullName string `json:"fullName" binding:"required"`
		Gender   string `json:"gender" binding:"required"`
		Email    string `json:"email" binding:"required"`
		Phone    string `json:"phone" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid signup request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	result, err := h.authServ.Signup(c.Request.Context(), service.SignupInput{
		FullName: req.FullName,
		Gender:   domain.Gender(req.Gender),
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
	})
	if err != nil {
		var fieldErrs service.ValidationErrors
		switch {
		case errors.As(err, &fieldErrs):
			c.JSON(http.StatusBadRequest, gin.H{"errors": fieldErrs})
		case errors.Is(err, service.ErrDuplicateUser):
			c.JSON(http.StatusConflict, gin.H{"error": "email or phone already registered"})
		case errors.Is(err, service.ErrEmailSendFailure):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "email delivery unavailable"})
		default:
			h.logger.Error("signup failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not sign up"})
		}
		return
	}

	body := gin.H{"userId": result.UserID, "email": result.Email}
	h.attachDevProof(body, result.Challenge)
	c.JSON(http.StatusCreated, body)
}

// Login maneja POST /api/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	result, err := h.authServ.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		h.logger.Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not login"})
		return
	}

	if result.RequiresVerification {
		body := gin.H{"requiresVerification": true, "email": result.User.Email}
		h.attachDevProof(body, result.Challenge)
		c.JSON(http.StatusForbidden, body)
		return
	}

	h.setRefreshCookie(c, result.RefreshToken)
	c.JSON(http.StatusOK, gin.H{"accessToken": result.AccessToken, "user": result.User})
}

// VerifyOTP maneja POST /api/auth/verify-otp.
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
		Code  string `json:"code" binding:"required,len=6,numeric"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid otp verify request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	result, err := h.authServ.VerifyOTP(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		case errors.Is(err, service.ErrNoActiveCode),
			errors.Is(err, service.ErrCodeExpired),
			errors.Is(err, service.ErrCodeMismatch):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Error("verify otp failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not verify otp"})
		}
		return
	}

	h.setRefreshCookie(c, result.RefreshToken)
	c.JSON(http.StatusOK, gin.H{"accessToken": result.AccessToken, "user": result.User})
}

// VerifyEmail maneja POST /api/auth/verify-email (estrategia por link firmado).
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid verify email request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	result, err := h.authServ.VerifyLink(c.Request.Context(), req.Token)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTokenInvalid),
			errors.Is(err, service.ErrTokenExpired),
			errors.Is(err, service.ErrLinkSuperseded),
			errors.Is(err, service.ErrNoActiveCode):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Error("verify email failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not verify email"})
		}
		return
	}

	h.setRefreshCookie(c, result.RefreshToken)
	c.JSON(http.StatusOK, gin.H{"accessToken": result.AccessToken, "user": result.User})
}

// RequestVerification maneja POST /api/auth/request-otp y
// POST /api/auth/request-email-verify: un solo challenge cubre ambos proofs.
func (h *AuthHandler) RequestVerification(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid verification request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	_, info, err := h.verifyServ.RequestChallenge(c.Request.Context(), req.Email)
	if err != nil {
		var throttled *service.ThrottledError
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		case errors.As(err, &throttled):
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":             "resend throttled",
				"retryAfterSeconds": throttled.RetryAfterSeconds,
			})
		case errors.Is(err, service.ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
		case errors.Is(err, service.ErrEmailSendFailure):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "email delivery unavailable"})
		default:
			h.logger.Error("request verification failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not send verification"})
		}
		return
	}

	body := gin.H{"message": "verification sent"}
	h.attachDevProof(body, info)
	c.JSON(http.StatusOK, body)
}

// Refresh maneja POST /api/auth/refresh. El refresh token viaja solo en la
// cookie HTTP-only, nunca en el body.
func (h *AuthHandler) Refresh(c *gin.Context) {
	cookie, err := c.Cookie(refreshCookieName)
	if err != nil || cookie == "" {
		h.clearRefreshCookie(c)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	result, err := h.authServ.Refresh(c.Request.Context(), cookie)
	if err != nil {
		if errors.Is(err, service.ErrTokenInvalid) || errors.Is(err, service.ErrTokenExpired) {
			h.clearRefreshCookie(c)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		h.logger.Error("refresh failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not refresh"})
		return
	}

	h.setRefreshCookie(c, result.RefreshToken)
	c.JSON(http.StatusOK, gin.H{"accessToken": result.AccessToken, "user": result.User})
}

// Logout maneja POST /api/auth/logout. Idempotente: nunca falla.
func (h *AuthHandler) Logout(c *gin.Context) {
	h.clearRefreshCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Me maneja GET /api/auth/me.
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	user, err := h.authServ.Me(c.Request.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		h.logger.Error("me failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load profile"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// SetInterests maneja POST /api/auth/interests.
func (h *AuthHandler) SetInterests(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	// Sin binding required: una lista vacía es un reemplazo válido (limpiar).
	var req struct {
		Interests []string `json:"interests"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid interests request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	user, err := h.authServ.SetInterests(c.Request.Context(), claims.UserID, req.Interests)
	if err != nil {
		h.logger.Error("set interests failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update interests"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(refreshCookieName, token, h.cookies.MaxAge, "/api/auth", h.cookies.Domain, h.cookies.Secure, true)
}

func (h *AuthHandler) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(refreshCookieName, "", -1, "/api/auth", h.cookies.Domain, h.cookies.Secure, true)
}

// attachDevProof echa código y link en la respuesta solo fuera de producción.
func (h *AuthHandler) attachDevProof(body gin.H, info service.ChallengeInfo) {
	if h.production {
		return
	}
	if info.Code != "" {
		body["devCode"] = info.Code
	}
	if info.Link != "" {
		body["devLink"] = info.Link
	}
}
