package identity

import "strings"

const (
	maxEmailLen    = 254
	maxRoleNameLen = 100
	maxNameLen     = 100
)

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeRoles trims role names, drops empties and duplicates, and keeps first-seen order.
// Role names are case-sensitive ("Admin" and "admin" are different roles).
func NormalizeRoles(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, r := range in {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

func validateCreate(op string, in CreateUserInput) (CreateUserInput, error) {
	in.Email = NormalizeEmail(in.Email)
	if in.Email == "" || !strings.Contains(in.Email, "@") {
		return in, invalid(op, "valid email is required")
	}
	if len(in.Email) > maxEmailLen {
		return in, invalid(op, "email too long")
	}
	if in.PasswordHash == "" || in.PasswordSalt == "" {
		return in, invalid(op, "password hash and salt are required")
	}

	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if len(in.FirstName) > maxNameLen || len(in.LastName) > maxNameLen {
		return in, invalid(op, "name too long")
	}
	if in.PhoneNumber != nil {
		p := strings.TrimSpace(*in.PhoneNumber)
		if p == "" {
			in.PhoneNumber = nil
		} else {
			in.PhoneNumber = &p
		}
	}

	in.Roles = NormalizeRoles(in.Roles)
	for _, r := range in.Roles {
		if len(r) > maxRoleNameLen {
			return in, invalid(op, "role name too long")
		}
	}
	return in, nil
}
