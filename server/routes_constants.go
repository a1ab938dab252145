package server

// Console facing routes. Everything under /api is same-origin and forwarded
// to the remote backend.
const (
	RouteGenerateToken = "/api/auth/generate-token"

	RouteTenants = "/api/tenants"
	RouteTenant  = "/api/tenants/{id}"
	RouteUsers   = "/api/users"
	RouteUser    = "/api/users/{id}"
	RouteRoles   = "/api/roles"
	RouteRole    = "/api/roles/{id}"

	RouteMetrics = "/metrics"
)

// Upstream routes on the remote backend. Paths keep their trailing slash.
const (
	upstreamGenerateToken = "/bh-user/generate-token/"

	upstreamTenants = "/bh-tenant/"
	upstreamUsers   = "/bh-user/"
	upstreamRoles   = "/bh-role/"
)
