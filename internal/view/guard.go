package view

import (
	"queuehive/internal/models"
	"queuehive/internal/session"
)

const (
	RouteLogin            = "/login"
	RouteRegister         = "/register"
	RouteUnauthorized     = "/unauthorized"
	RouteUserDashboard    = "/user/dashboard"
	RouteCompanyDashboard = "/company/dashboard"
	RouteAdminDashboard   = "/admin/dashboard"
)

var protected = map[string]models.Role{
	RouteUserDashboard:    models.RoleUser,
	RouteCompanyDashboard: models.RoleCompanyAdmin,
	RouteAdminDashboard:   models.RoleSuperAdmin,
}

// Guard decides whether identity may open route. It returns the route to
// redirect to, or "" when access is allowed. A zero identity means no
// session.
func Guard(route string, identity session.Identity) string {
	role, ok := protected[route]
	if !ok {
		return ""
	}
	if identity.Token == "" {
		return RouteLogin
	}
	if identity.Role != role {
		return RouteUnauthorized
	}
	return ""
}

// HomeRoute is the dashboard a role lands on after login.
func HomeRoute(role models.Role) string {
	for route, required := range protected {
		if required == role {
			return route
		}
	}
	return RouteLogin
}
