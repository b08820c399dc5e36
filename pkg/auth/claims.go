package auth

import "github.com/golang-jwt/jwt/v5"

// AccessTokenPayload captures the data available when minting an admin JWT.
type AccessTokenPayload struct {
	Subject string
	Role    string
	JTI     string
}

// AccessTokenClaims represents the typed JWT accepted by the admin API.
type AccessTokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}
