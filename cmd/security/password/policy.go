package password

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// commonPasswords is a tiny deny-list of the most frequent leaked passwords.
var commonPasswords = map[string]struct{}{
	"password":    {},
	"password1":   {},
	"password123": {},
	"12345678":    {},
	"123456789":   {},
	"qwerty123":   {},
	"11111111":    {},
	"iloveyou":    {},
	"qazaqstan":   {},
	"kazakhstan":  {},
}

// Validate checks password policy. It does not mutate input.
func (c Config) Validate(password string) error {
	// Count runes, not bytes.
	n := utf8.RuneCountInString(password)

	if n < c.Policy.MinLength {
		return ErrPasswordTooShort
	}
	if n > c.Policy.MaxLength {
		return ErrPasswordTooLong
	}
	if c.Policy.RejectVeryWeak && looksVeryWeak(password) {
		return ErrWeakPassword
	}
	return nil
}

// looksVeryWeak is not an entropy estimator; it only catches the obvious cases.
func looksVeryWeak(pw string) bool {
	s := strings.TrimSpace(pw)
	if s == "" {
		return true
	}

	if _, ok := commonPasswords[strings.ToLower(s)]; ok {
		return true
	}

	first, _ := utf8.DecodeRuneInString(s)
	if strings.Trim(s, string(first)) == "" {
		return true
	}

	return strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 &&
		utf8.RuneCountInString(s) < 12
}
