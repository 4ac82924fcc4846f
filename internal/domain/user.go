package domain

import "time"

// Gender es el enum de género aceptado en el registro.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// IsValid indica si el valor pertenece al enum.
func (g Gender) IsValid() bool {
	return g == GenderMale || g == GenderFemale
}

// User representa la identidad de una cuenta registrada.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	FullName      string    `json:"full_name"`
	Gender        Gender    `json:"gender"`
	PasswordHash  string    `json:"-"`
	Interests     []string  `json:"interests,omitempty"`
	EmailVerified bool      `json:"email_verified"`

	// Marca de emisión del último link de verificación; tokens
	// anteriores a esta marca quedan supersedidos.
	EmailVerifyIssuedAt *time.Time `json:"-"`

	// Challenge OTP embebido: a lo sumo uno vivo por usuario.
	OtpCodeHash  string     `json:"-"`
	OtpExpiresAt *time.Time `json:"-"`
	OtpResendAt  *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasChallenge indica si el usuario tiene un challenge OTP pendiente.
func (u User) HasChallenge() bool {
	return u.OtpCodeHash != "" && u.OtpExpiresAt != nil
}
