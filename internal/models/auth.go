package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the JWT payload for access tokens. StudentID is set for student accounts.
type JWTClaims struct {
	UserID    string   `json:"user_id"`
	Role      UserRole `json:"role"`
	Email     string   `json:"email"`
	FullName  string   `json:"full_name"`
	StudentID string   `json:"student_id,omitempty"`
	ClassID   string   `json:"class_id,omitempty"`
	jwt.RegisteredClaims
}

// Actor is the authenticated caller passed from handlers to services.
type Actor struct {
	UserID    string
	Role      UserRole
	StudentID string
	ClassID   string
	IP        string
	UserAgent string
}

// ActorFromClaims builds an Actor from validated token claims.
func ActorFromClaims(claims *JWTClaims) Actor {
	if claims == nil {
		return Actor{}
	}
	return Actor{UserID: claims.UserID, Role: claims.Role, StudentID: claims.StudentID, ClassID: claims.ClassID}
}
