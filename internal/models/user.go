package models

import "strings"

type Role string

const (
	RoleUser         Role = "USER"
	RoleCompanyAdmin Role = "COMPANY_ADMIN"
	RoleSuperAdmin   Role = "SUPER_ADMIN"
)

func ParseRole(raw string) (Role, bool) {
	role := Role(strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(raw)), "ROLE_"))
	switch role {
	case RoleUser, RoleCompanyAdmin, RoleSuperAdmin:
		return role, true
	default:
		return "", false
	}
}

type User struct {
	ID        int64     `json:"id"`
	FullName  string    `json:"fullName"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt Timestamp `json:"createdAt"`
}

type LoginResponse struct {
	Token     string `json:"token"`
	Role      Role   `json:"role"`
	UserID    int64  `json:"userId"`
	CompanyID *int64 `json:"companyId"`
}
