package auth

import (
	"net/mail"
	"strings"
	"unicode"

	"github.com/blenvi/blenvi/internal/domain"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 128
)

const specialChars = `!@#$%^&*()_+-=[]{};':"\\|,.<>/?`

var weakPrefixes = []string{"123456", "password", "qwerty", "abc123", "111111", "000000", "admin", "welcome"}

// ValidateSignup checks the sign-up form.
func ValidateSignup(in SignupInput) error {
	if in.FirstName == "" {
		return domain.NewValidationError("first_name", "first name is required")
	}
	if in.LastName == "" {
		return domain.NewValidationError("last_name", "last name is required")
	}
	if err := validateEmail(in.Email); err != nil {
		return err
	}
	return ValidatePassword(in.Password, in.FirstName, in.LastName, in.Email)
}

func validateEmail(email string) error {
	if email == "" {
		return domain.NewValidationError("email", "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return domain.NewValidationError("email", "invalid email address")
	}
	return nil
}

// ValidatePassword enforces the password policy. The personal values are
// matched case-insensitively and may be empty.
func ValidatePassword(password, firstName, lastName, email string) error {
	fail := func(msg string) error { return domain.NewValidationError("password", msg) }

	n := len([]rune(password))
	if n < minPasswordLength {
		return fail("password must be at least 8 characters")
	}
	if n > maxPasswordLength {
		return fail("password must be at most 128 characters")
	}
	var hasDigit, hasLower, hasUpper, hasSpecial bool
	var prev rune
	run := 0
	for _, r := range password {
		switch {
		case unicode.IsSpace(r):
			return fail("password must not contain spaces")
		case r >= '0' && r <= '9':
			hasDigit = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case strings.ContainsRune(specialChars, r):
			hasSpecial = true
		}
		if r == prev {
			run++
		} else {
			run = 1
		}
		if run >= 3 {
			return fail("password must not repeat a character 3 times in a row")
		}
		prev = r
	}
	switch {
	case !hasDigit:
		return fail("password must contain a number")
	case !hasLower:
		return fail("password must contain a lowercase letter")
	case !hasUpper:
		return fail("password must contain an uppercase letter")
	case !hasSpecial:
		return fail("password must contain a special character")
	}

	lower := strings.ToLower(password)
	for _, prefix := range weakPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return fail("password is too common")
		}
	}
	local, _, _ := strings.Cut(email, "@")
	for _, personal := range []string{firstName, lastName, local} {
		personal = strings.ToLower(strings.TrimSpace(personal))
		if personal != "" && strings.Contains(lower, personal) {
			return fail("password must not contain your name or email")
		}
	}
	return nil
}
