package model

import "time"

type Role string

const (
	RoleCustomer   Role = "customer"
	RoleModerator  Role = "moderator"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// IsStaff: модератор, админ и супер-админ обслуживают обращения клиентов.
func (r Role) IsStaff() bool {
	return r == RoleModerator || r == RoleAdmin || r == RoleSuperAdmin
}

func (r Role) Valid() bool {
	return r == RoleCustomer || r.IsStaff()
}

type User struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	Email               string     `json:"email"`
	Role                Role       `json:"role"`
	IsOnline            bool       `json:"is_online"`
	SocketID            *string    `json:"socket_id,omitempty"`
	LastSeen            *time.Time `json:"last_seen,omitempty"`
	IsBanned            bool       `json:"is_banned"`
	IsSuspended         bool       `json:"is_suspended"`
	SuspensionExpiresAt *time.Time `json:"suspension_expires_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

func (u *User) IsStaff() bool { return u.Role.IsStaff() }

// SuspensionExpired сообщает, что блокировка истекла и её нужно снять до проверки доступа.
func (u *User) SuspensionExpired(now time.Time) bool {
	return u.IsSuspended && u.SuspensionExpiresAt != nil && !u.SuspensionExpiresAt.After(now)
}

type UserPublic struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Role     Role       `json:"role"`
	IsOnline bool       `json:"is_online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:       u.ID,
		Name:     u.Name,
		Role:     u.Role,
		IsOnline: u.IsOnline,
		LastSeen: u.LastSeen,
	}
}
