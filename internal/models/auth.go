package models

import "github.com/golang-jwt/jwt/v5"

// UserRole scopes what an actor may do. Session mechanics live outside this
// service; tokens arrive pre-issued and are only validated here.
type UserRole string

const (
	RoleAdmin    UserRole = "ADMIN"
	RoleEnforcer UserRole = "ENFORCER"
)

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
