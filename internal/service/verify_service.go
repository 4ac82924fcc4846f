package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"relay-chat/internal/domain"
	"relay-chat/internal/email"
	"relay-chat/internal/repository"
)

const (
	otpTTL            = 5 * time.Minute
	otpResendCooldown = 45 * time.Second
	linkClockSkew     = 5 * time.Second
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrNoActiveCode     = errors.New("no active verification code")
	ErrCodeExpired      = errors.New("verification code expired")
	ErrCodeMismatch     = errors.New("verification code mismatch")
	ErrLinkSuperseded   = errors.New("verification link superseded")
	ErrEmailSendFailure = errors.New("email send failed")
	ErrRateLimited      = errors.New("rate limited")
)

// ThrottledError indica que el cooldown de reenvío sigue vigente.
type ThrottledError struct {
	RetryAfterSeconds int
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("resend throttled, retry in %ds", e.RetryAfterSeconds)
}

// ChallengeInfo expone el proof recién emitido. Solo los handlers fuera de
// producción pueden echarlo en la respuesta.
type ChallengeInfo struct {
	Code      string
	Link      string
	ExpiresAt time.Time
}

// VerifyService orquesta la transición unverified -> verified sobre dos
// estrategias intercambiables: código OTP y link firmado.
type VerifyService struct {
	logger     *zap.Logger
	users      repository.UserRepository
	tokens     *TokenService
	sender     email.Sender
	limiter    OTPRateLimiter
	baseURL    string
	production bool
}

func NewVerifyService(logger *zap.Logger, users repository.UserRepository, tokens *TokenService, sender email.Sender, limiter OTPRateLimiter, baseURL string, production bool) *VerifyService {
	return &VerifyService{
		logger:     logger,
		users:      users,
		tokens:     tokens,
		sender:     sender,
		limiter:    limiter,
		baseURL:    strings.TrimRight(baseURL, "/"),
		production: production,
	}
}

// IssueChallenge emite un challenge nuevo (código + link en el mismo correo)
// y sobrescribe el anterior: a lo sumo uno vivo por usuario.
func (s *VerifyService) IssueChallenge(ctx context.Context, user domain.User) (ChallengeInfo, error) {
	code, err := generateOTPCode()
	if err != nil {
		return ChallengeInfo{}, err
	}
	hashBytes, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return ChallengeInfo{}, err
	}

	linkToken, err := s.tokens.Issue(KindEmailVerify, user.ID, user.Email)
	if err != nil {
		return ChallengeInfo{}, err
	}
	link := s.baseURL + "/verify-email?token=" + url.QueryEscape(linkToken)

	now := time.Now().UTC()
	expiresAt := now.Add(otpTTL)
	resendAt := now.Add(otpResendCooldown)
	if err := s.users.UpdateChallenge(ctx, user.ID, string(hashBytes), expiresAt, resendAt, now); err != nil {
		return ChallengeInfo{}, err
	}

	if err := s.sender.SendVerification(ctx, user.Email, code, link, expiresAt); err != nil {
		if s.logger != nil {
			s.logger.Warn("send verification failed", zap.Error(err), zap.String("email", user.Email))
		}
		if s.production {
			return ChallengeInfo{}, ErrEmailSendFailure
		}
	}

	return ChallengeInfo{Code: code, Link: link, ExpiresAt: expiresAt}, nil
}

// ResendChallenge reemite respetando el cooldown de 45 segundos.
func (s *VerifyService) ResendChallenge(ctx context.Context, user domain.User) (ChallengeInfo, error) {
	now := time.Now().UTC()
	if user.OtpResendAt != nil && now.Before(*user.OtpResendAt) {
		remaining := int(user.OtpResendAt.Sub(now).Seconds())
		if remaining < 1 {
			remaining = 1
		}
		return ChallengeInfo{}, &ThrottledError{RetryAfterSeconds: remaining}
	}
	return s.IssueChallenge(ctx, user)
}

// RequestChallenge atiende los endpoints públicos de reenvío por email.
func (s *VerifyService) RequestChallenge(ctx context.Context, emailAddr string) (domain.User, ChallengeInfo, error) {
	emailAddr = normalizeEmail(emailAddr)
	if s.limiter != nil && !s.limiter.Allow(emailAddr) {
		return domain.User{}, ChallengeInfo{}, ErrRateLimited
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ChallengeInfo{}, ErrUserNotFound
		}
		return domain.User{}, ChallengeInfo{}, err
	}

	info, err := s.ResendChallenge(ctx, user)
	if err != nil {
		return domain.User{}, ChallengeInfo{}, err
	}
	return user, info, nil
}

// ConsumeChallenge valida el código presentado y marca la cuenta verificada.
// La transición es one-shot: el mismo código después del éxito falla.
func (s *VerifyService) ConsumeChallenge(ctx context.Context, emailAddr, code string) (domain.User, error) {
	emailAddr = normalizeEmail(emailAddr)
	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}

	if !user.HasChallenge() {
		return domain.User{}, ErrNoActiveCode
	}
	if time.Now().UTC().After(*user.OtpExpiresAt) {
		return domain.User{}, ErrCodeExpired
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.OtpCodeHash), []byte(strings.TrimSpace(code))); err != nil {
		return domain.User{}, ErrCodeMismatch
	}

	return s.markVerified(ctx, user)
}

// ConsumeLink valida un link firmado. Un link más nuevo supersede al viejo
// aunque el viejo no haya expirado todavía.
func (s *VerifyService) ConsumeLink(ctx context.Context, token string) (domain.User, error) {
	claims, err := s.tokens.Verify(token, KindEmailVerify)
	if err != nil {
		return domain.User{}, err
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrTokenInvalid
		}
		return domain.User{}, err
	}
	if !strings.EqualFold(user.Email, claims.Email) {
		return domain.User{}, ErrTokenInvalid
	}
	if user.EmailVerifyIssuedAt == nil {
		// Challenge ya consumido o nunca emitido.
		return domain.User{}, ErrNoActiveCode
	}
	if claims.IssuedAt == nil {
		return domain.User{}, ErrTokenInvalid
	}
	if user.EmailVerifyIssuedAt.After(claims.IssuedAt.Time.Add(linkClockSkew)) {
		return domain.User{}, ErrLinkSuperseded
	}

	return s.markVerified(ctx, user)
}

func (s *VerifyService) markVerified(ctx context.Context, user domain.User) (domain.User, error) {
	if err := s.users.MarkVerified(ctx, user.ID); err != nil {
		return domain.User{}, err
	}
	user.EmailVerified = true
	user.OtpCodeHash = ""
	user.OtpExpiresAt = nil
	user.OtpResendAt = nil
	user.EmailVerifyIssuedAt = nil
	return user, nil
}

func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
