package auth

import "time"

type Role string

const (
	RoleClient      Role = "client"
	RoleTranscriber Role = "transcriber"
	RoleAdmin       Role = "admin"
)

// User is the domain representation of an account in the user directory.
// It mirrors the users table and should not include JSON annotations so it
// can be reused by different presentation layers.
type User struct {
	ID            string
	Email         string
	FullName      string
	PasswordHash  string
	Role          Role
	Status        string
	Available     bool
	CurrentJobID  *string
	Rating        float64
	CompletedJobs int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RegisterRequest contains user registration data supplied by callers.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     Role   `json:"role"`
}

// LoginRequest contains user login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
