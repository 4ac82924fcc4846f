package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"relay-chat/internal/domain"
	"relay-chat/internal/repository"
)

const passwordHashCost = 12

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDuplicateUser      = errors.New("email or phone already registered")
)

// AuthService es la máquina de estados de sesión: signup, login, refresh,
// verificación e intereses. Compone repositorio, tokens y verificación.
type AuthService struct {
	logger *zap.Logger
	users  repository.UserRepository
	tokens *TokenService
	verify *VerifyService
}

func NewAuthService(logger *zap.Logger, users repository.UserRepository, tokens *TokenService, verify *VerifyService) *AuthService {
	return &AuthService{
		logger: logger,
		users:  users,
		tokens: tokens,
		verify: verify,
	}
}

type SignupInput struct {
	FullName string
	Gender   domain.Gender
	Email    string
	Phone    string
	Password string
}

type SignupResult struct {
	UserID    string
	Email     string
	Challenge ChallengeInfo
}

// SessionResult es el resultado de cualquier operación que puede abrir sesión.
// Con RequiresVerification en true no se emite ningún token.
type SessionResult struct {
	AccessToken          string
	RefreshToken         string
	User                 domain.User
	RequiresVerification bool
	Challenge            ChallengeInfo
}

// Signup registra la cuenta y dispara el primer challenge de verificación.
// Nunca devuelve tokens: la cuenta todavía no es usable.
func (s *AuthService) Signup(ctx context.Context, input SignupInput) (SignupResult, error) {
	if errs := ValidateSignup(input); len(errs) > 0 {
		return SignupResult{}, errs
	}

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(input.Password), passwordHashCost)
	if err != nil {
		return SignupResult{}, err
	}

	now := time.Now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		Email:        normalizeEmail(input.Email),
		Phone:        strings.TrimSpace(input.Phone),
		FullName:     strings.TrimSpace(input.FullName),
		Gender:       input.Gender,
		PasswordHash: string(hashBytes),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return SignupResult{}, ErrDuplicateUser
		}
		return SignupResult{}, err
	}

	info, err := s.verify.IssueChallenge(ctx, user)
	if err != nil {
		return SignupResult{}, err
	}

	return SignupResult{UserID: user.ID, Email: user.Email, Challenge: info}, nil
}

// Login autentica por email y contraseña. Para cuentas sin verificar no falla:
// reemite un challenge y redirige al flujo de verificación, sin tokens.
func (s *AuthService) Login(ctx context.Context, emailAddr, password string) (SessionResult, error) {
	emailAddr = normalizeEmail(emailAddr)
	password = strings.TrimSpace(password)
	if emailAddr == "" || password == "" {
		return SessionResult{}, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Mismo error que password incorrecto: no filtrar cuál falló.
			return SessionResult{}, ErrInvalidCredentials
		}
		return SessionResult{}, err
	}
	if user.PasswordHash == "" {
		return SessionResult{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return SessionResult{}, ErrInvalidCredentials
	}

	if !user.EmailVerified {
		info, err := s.verify.ResendChallenge(ctx, user)
		if err != nil {
			var throttled *ThrottledError
			if !errors.As(err, &throttled) {
				return SessionResult{}, err
			}
			// Cooldown vigente: el challenge anterior sigue en camino.
		}
		return SessionResult{
			User:                 user,
			RequiresVerification: true,
			Challenge:            info,
		}, nil
	}

	return s.openSession(user)
}

// Refresh rota el par de tokens a partir de un refresh token válido.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (SessionResult, error) {
	claims, err := s.tokens.Verify(refreshToken, KindRefresh)
	if err != nil {
		return SessionResult{}, err
	}
	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SessionResult{}, ErrTokenInvalid
		}
		return SessionResult{}, err
	}
	return s.openSession(user)
}

// VerifyOTP consume el código y, si es correcto, abre la primera sesión.
func (s *AuthService) VerifyOTP(ctx context.Context, emailAddr, code string) (SessionResult, error) {
	user, err := s.verify.ConsumeChallenge(ctx, emailAddr, code)
	if err != nil {
		return SessionResult{}, err
	}
	return s.openSession(user)
}

// VerifyLink consume el link firmado y abre sesión igual que VerifyOTP.
func (s *AuthService) VerifyLink(ctx context.Context, token string) (SessionResult, error) {
	user, err := s.verify.ConsumeLink(ctx, token)
	if err != nil {
		return SessionResult{}, err
	}
	return s.openSession(user)
}

// SetInterests reemplaza la lista de intereses del usuario autenticado.
func (s *AuthService) SetInterests(ctx context.Context, userID string, tags []string) (domain.User, error) {
	interests := normalizeInterests(tags)
	if err := s.users.UpdateInterests(ctx, userID, interests); err != nil {
		return domain.User{}, err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

// Me devuelve el perfil del usuario autenticado.
func (s *AuthService) Me(ctx context.Context, userID string) (domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

func (s *AuthService) openSession(user domain.User) (SessionResult, error) {
	access, err := s.tokens.Issue(KindAccess, user.ID, user.Email)
	if err != nil {
		return SessionResult{}, err
	}
	refresh, err := s.tokens.Issue(KindRefresh, user.ID, user.Email)
	if err != nil {
		return SessionResult{}, err
	}
	return SessionResult{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         user,
	}, nil
}
