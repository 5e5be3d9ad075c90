package model

import (
    "strings"
    "time"
)

// Role is the directory role mirrored onto a credential.  The set is owned by
// the user directory; this service only stores and signs it.
type Role string

const (
    RoleMember      Role = "member"
    RoleLibrarian   Role = "librarian"
    RoleAccessAdmin Role = "access-admin"
    RoleSuperAdmin  Role = "super-admin"
)

// Valid reports whether r is one of the known directory roles.
func (r Role) Valid() bool {
    switch r {
    case RoleMember, RoleLibrarian, RoleAccessAdmin, RoleSuperAdmin:
        return true
    }
    return false
}

// Credential represents a row of the `credentials` table.  The user_id is
// assigned by the user directory and is never generated locally.
//
// Fields:
//  UserID       – external identifier, primary key.
//  Email        – unique, normalised login name.
//  Role         – role copied from the directory.
//  PasswordHash – bcrypt hash; nil until the invite has been redeemed.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type Credential struct {
    UserID       string     // credentials.user_id
    Email        string     // credentials.email
    Role         Role       // credentials.role
    PasswordHash *string    // credentials.password_hash (nullable)
    CreatedAt    time.Time  // credentials.created_at
    UpdatedAt    time.Time  // credentials.updated_at
}

// HasPassword reports whether the invite for this credential has been used.
func (c Credential) HasPassword() bool { return c.PasswordHash != nil }

// NormalizeEmail lower-cases and trims an email address so lookups and the
// unique index agree on one spelling.
func NormalizeEmail(email string) string {
    return strings.ToLower(strings.TrimSpace(email))
}
