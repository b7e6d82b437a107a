package authapi

import (
	"slices"

	"sauat/cmd/internal/auth/session"
)

func toUserProfileResponse(p session.Profile) userProfileResponse {
	roles := slices.Clone(p.Roles)
	if roles == nil {
		roles = []string{}
	}
	return userProfileResponse{
		ID:          p.ID,
		Email:       p.Email,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		PhoneNumber: p.PhoneNumber,
		Roles:       roles,
		LastLoginAt: p.LastLoginAt,
	}
}

func toLoginResponse(issued session.Issued) loginResponse {
	return loginResponse{
		AccessToken:      issued.AccessToken,
		RefreshToken:     issued.RefreshToken,
		ExpiresAt:        issued.AccessExpiresAt,
		RefreshExpiresAt: issued.RefreshExpiresAt,
		UserProfile:      toUserProfileResponse(issued.User),
	}
}

func toRefreshTokenResponse(issued session.Issued) refreshTokenResponse {
	return refreshTokenResponse{
		AccessToken:      issued.AccessToken,
		RefreshToken:     issued.RefreshToken,
		ExpiresAt:        issued.AccessExpiresAt,
		RefreshExpiresAt: issued.RefreshExpiresAt,
	}
}
