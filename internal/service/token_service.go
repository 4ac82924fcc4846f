package service

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// TokenKind identifica las tres clases de token firmado que emite el servicio.
type TokenKind string

const (
	KindAccess      TokenKind = "access"
	KindRefresh     TokenKind = "refresh"
	KindEmailVerify TokenKind = "email_verify"
)

// Claims es el payload común a los tres tipos de token.
type Claims struct {
	UserID    string `json:"uid"`
	Email     string `json:"email"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

var (
	ErrTokenInvalid  = errors.New("token invalid")
	ErrTokenExpired  = errors.New("token expired")
	ErrSecretMissing = errors.New("jwt secret not configured")
	ErrSecretReuse   = errors.New("jwt secrets must be distinct per kind")
)

const tokenIssuer = "relay-chat"

// TokenService emite y valida tokens JWT de acceso, refresh y verificación.
// Cada clase firma con su propio secreto: dominios de confianza separados.
type TokenService struct {
	secrets map[TokenKind][]byte
	ttls    map[TokenKind]time.Duration
}

// NewTokenService construye el emisor de tokens. En producción un secreto
// ausente es fatal; fuera de producción se sustituye por un secreto de
// desarrollo y se deja constancia en el log.
func NewTokenService(logger *zap.Logger, accessSecret, refreshSecret, emailSecret string, accessTTL, refreshTTL, emailTTL time.Duration, production bool) (*TokenService, error) {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	if emailTTL <= 0 {
		emailTTL = time.Hour
	}

	secrets := map[TokenKind]string{
		KindAccess:      strings.TrimSpace(accessSecret),
		KindRefresh:     strings.TrimSpace(refreshSecret),
		KindEmailVerify: strings.TrimSpace(emailSecret),
	}
	resolved := make(map[TokenKind][]byte, len(secrets))
	for kind, secret := range secrets {
		if secret == "" {
			if production {
				return nil, ErrSecretMissing
			}
			secret = "dev-insecure-" + string(kind)
			if logger != nil {
				logger.Warn("jwt secret not configured, using dev fallback",
					zap.String("kind", string(kind)))
			}
		}
		resolved[kind] = []byte(secret)
	}
	for a, sa := range resolved {
		for b, sb := range resolved {
			if a < b && string(sa) == string(sb) {
				return nil, ErrSecretReuse
			}
		}
	}

	return &TokenService{
		secrets: resolved,
		ttls: map[TokenKind]time.Duration{
			KindAccess:      accessTTL,
			KindRefresh:     refreshTTL,
			KindEmailVerify: emailTTL,
		},
	}, nil
}

// Issue firma un token de la clase pedida con payload {uid, email, typ}.
func (s *TokenService) Issue(kind TokenKind, userID, email string) (string, error) {
	secret, ok := s.secrets[kind]
	if !ok || len(secret) == 0 {
		return "", ErrSecretMissing
	}
	now := time.Now().UTC()
	claims := Claims{
		UserID:    userID,
		Email:     email,
		TokenType: string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttls[kind])),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// Verify valida firma, expiración y typ contra la clase esperada. Un token de
// refresh no sirve como access ni viceversa.
func (s *TokenService) Verify(tokenString string, kind TokenKind) (Claims, error) {
	secret, ok := s.secrets[kind]
	if !ok || len(secret) == 0 {
		return Claims{}, ErrSecretMissing
	}
	if strings.TrimSpace(tokenString) == "" {
		return Claims{}, ErrTokenInvalid
	}

	var claims Claims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}
	if claims.TokenType != string(kind) {
		return Claims{}, ErrTokenInvalid
	}
	if !isValidClaims(claims) {
		return Claims{}, ErrTokenInvalid
	}
	return claims, nil
}

func isValidClaims(claims Claims) bool {
	if strings.TrimSpace(claims.UserID) == "" {
		return false
	}
	if claims.Subject != claims.UserID {
		return false
	}
	return strings.TrimSpace(claims.Issuer) == tokenIssuer
}
