package models

// Envelope is the response shape of every backend endpoint
type Envelope[T any] struct {
	Success bool      `json:"success"`
	Data    *T        `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// APIError is the error member of an Envelope
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// TokenData is returned by login, signup, social login and refresh.
// RefreshToken is optional on refresh.
type TokenData struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// LoginRequest is the body of the login route
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// SignupRequest is the body of the signup route
type SignupRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	Name       string `json:"name,omitempty"`
}

// SocialLoginRequest is the body of the social login route
type SocialLoginRequest struct {
	Token string `json:"token"`
}
