package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"relay-chat/internal/domain"
)

// UserRepository define el contrato de persistencia para usuarios.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	UpdateChallenge(ctx context.Context, id, codeHash string, expiresAt, resendAt, issuedAt time.Time) error
	MarkVerified(ctx context.Context, id string) error
	UpdateInterests(ctx context.Context, id string, interests []string) error
}

// PgUserRepository implementa UserRepository usando pgxpool.
type PgUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

const userColumns = `
	id, email, phone, full_name, gender, password_hash, interests,
	email_verified, email_verify_issued_at,
	COALESCE(otp_code_hash, ''), otp_expires_at, otp_resend_at,
	created_at, updated_at
`

func (r *PgUserRepository) Create(ctx context.Context, user domain.User) error {
	const query = `
		INSERT INTO users (id, email, phone, full_name, gender, password_hash, interests,
			email_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Email,
		user.Phone,
		user.FullName,
		user.Gender,
		user.PasswordHash,
		user.Interests,
		user.EmailVerified,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		// La unicidad de email/teléfono la decide el índice, no un
		// read-then-write: dos signups concurrentes compiten acá.
		return ErrDuplicate
	}
	return err
}

func (r *PgUserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanOne(ctx, query, id)
}

func (r *PgUserRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanOne(ctx, query, email)
}

func (r *PgUserRepository) scanOne(ctx context.Context, query string, arg any) (domain.User, error) {
	var u domain.User
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID,
		&u.Email,
		&u.Phone,
		&u.FullName,
		&u.Gender,
		&u.PasswordHash,
		&u.Interests,
		&u.EmailVerified,
		&u.EmailVerifyIssuedAt,
		&u.OtpCodeHash,
		&u.OtpExpiresAt,
		&u.OtpResendAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (r *PgUserRepository) UpdateChallenge(ctx context.Context, id, codeHash string, expiresAt, resendAt, issuedAt time.Time) error {
	// Sobrescritura incondicional: un challenge nuevo invalida al anterior.
	const query = `
		UPDATE users
		SET otp_code_hash = $2, otp_expires_at = $3, otp_resend_at = $4,
			email_verify_issued_at = $5, updated_at = now()
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, id, codeHash, expiresAt, resendAt, issuedAt)
	return err
}

func (r *PgUserRepository) MarkVerified(ctx context.Context, id string) error {
	const query = `
		UPDATE users
		SET email_verified = TRUE,
			otp_code_hash = '', otp_expires_at = NULL, otp_resend_at = NULL,
			email_verify_issued_at = NULL, updated_at = now()
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

func (r *PgUserRepository) UpdateInterests(ctx context.Context, id string, interests []string) error {
	const query = `UPDATE users SET interests = $2, updated_at = now() WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, interests)
	return err
}
