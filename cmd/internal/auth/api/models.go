package authapi

import "time"

// Wire names follow the LearnKazakh client contract (camelCase).

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"` // decoded so strict decoding admits the client payload; ignored
}

type registerRequest struct {
	Email       string  `json:"email"`
	FirstName   string  `json:"firstName"`
	LastName    string  `json:"lastName"`
	Password    string  `json:"password"`
	PhoneNumber *string `json:"phoneNumber"`
}

type refreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type userProfileResponse struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	PhoneNumber *string    `json:"phoneNumber"`
	Roles       []string   `json:"roles"`
	LastLoginAt *time.Time `json:"lastLoginAt"`
}

type loginResponse struct {
	AccessToken      string              `json:"accessToken"`
	RefreshToken     string              `json:"refreshToken"`
	ExpiresAt        time.Time           `json:"expiresAt"`
	RefreshExpiresAt time.Time           `json:"refreshExpiresAt"`
	UserProfile      userProfileResponse `json:"userProfileDto"`
}

type refreshTokenResponse struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	ExpiresAt        time.Time `json:"expiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}
