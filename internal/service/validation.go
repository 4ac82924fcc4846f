package service

import (
	"regexp"
	"strings"
	"unicode"
)

// Reglas de validación compartidas: una sola fuente para email, teléfono y
// política de contraseñas, en vez de duplicarlas por capa.

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
)

// FieldError es un error de validación atribuible a un campo.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors agrupa errores de campo; nunca llega a la capa de dominio.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, fe := range v {
		msgs = append(msgs, fe.Field+": "+fe.Message)
	}
	return strings.Join(msgs, "; ")
}

// ValidEmail valida el formato del email (ya normalizado).
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// ValidPhone valida el formato del teléfono.
func ValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

// ValidatePassword exige al menos 8 caracteres, un dígito y un símbolo.
func ValidatePassword(password string) bool {
	if len(password) < 8 {
		return false
	}
	var hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case !unicode.IsLetter(r) && !unicode.IsSpace(r):
			hasSymbol = true
		}
	}
	return hasDigit && hasSymbol
}

// ValidateSignup revisa todos los campos del registro y acumula errores.
func ValidateSignup(input SignupInput) ValidationErrors {
	var errs ValidationErrors
	if strings.TrimSpace(input.FullName) == "" {
		errs = append(errs, FieldError{Field: "full_name", Message: "required"})
	}
	if !input.Gender.IsValid() {
		errs = append(errs, FieldError{Field: "gender", Message: "must be male or female"})
	}
	if !ValidEmail(normalizeEmail(input.Email)) {
		errs = append(errs, FieldError{Field: "email", Message: "invalid email"})
	}
	if !ValidPhone(strings.TrimSpace(input.Phone)) {
		errs = append(errs, FieldError{Field: "phone", Message: "invalid phone"})
	}
	if !ValidatePassword(input.Password) {
		errs = append(errs, FieldError{Field: "password", Message: "must be at least 8 characters with a digit and a symbol"})
	}
	return errs
}

// normalizeInterests recorta, descarta vacíos y deduplica.
func normalizeInterests(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
