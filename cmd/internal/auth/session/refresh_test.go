package session

import (
	"testing"
	"time"
)

func TestRefreshToken_IsActive(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		tok     RefreshToken
		expired bool
		active  bool
	}{
		{"fresh", RefreshToken{ExpiresAt: now.Add(time.Hour)}, false, true},
		{"expires exactly now", RefreshToken{ExpiresAt: now}, false, true},
		{"expired", RefreshToken{ExpiresAt: now.Add(-time.Nanosecond)}, true, false},
		{"revoked", RefreshToken{ExpiresAt: now.Add(time.Hour), IsRevoked: true}, false, false},
		{"revoked and expired", RefreshToken{ExpiresAt: now.Add(-time.Hour), IsRevoked: true}, true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.tok.IsExpired(now); got != tc.expired {
				t.Fatalf("IsExpired = %v, want %v", got, tc.expired)
			}
			if got := tc.tok.IsActive(now); got != tc.active {
				t.Fatalf("IsActive = %v, want %v", got, tc.active)
			}
		})
	}
}
