package server

import (
	"net/http"
)

func (s *Server) initRoutes() {
	// TOKEN EXCHANGE
	s.RegisterRouteFunc("POST "+RouteGenerateToken, ChainMiddleware(s.GenerateTokenHandler(), s.APIMiddleware(RouteGenerateToken)...))

	// TENANTS
	s.RegisterRouteFunc("GET "+RouteTenants, ChainMiddleware(s.ListHandler(upstreamTenants), s.APIMiddleware(RouteTenants)...))
	s.RegisterRouteFunc("POST "+RouteTenants, ChainMiddleware(s.CreateHandler(upstreamTenants, wrapTenantTags), s.APIMiddleware(RouteTenants)...))
	s.RegisterRouteFunc("GET "+RouteTenant, ChainMiddleware(s.ItemHandler(upstreamTenants), s.APIMiddleware(RouteTenant)...))
	s.RegisterRouteFunc("DELETE "+RouteTenant, ChainMiddleware(s.ItemHandler(upstreamTenants), s.APIMiddleware(RouteTenant)...))
	s.RegisterRouteFunc("PATCH "+RouteTenant, ChainMiddleware(s.NotImplementedHandler("Tenant update is not implemented."), s.APIMiddleware(RouteTenant)...))

	// USERS
	s.RegisterRouteFunc("GET "+RouteUsers, ChainMiddleware(s.ListHandler(upstreamUsers), s.APIMiddleware(RouteUsers)...))
	s.RegisterRouteFunc("POST "+RouteUsers, ChainMiddleware(s.CreateHandler(upstreamUsers, nil), s.APIMiddleware(RouteUsers)...))
	s.RegisterRouteFunc("GET "+RouteUser, ChainMiddleware(s.ItemHandler(upstreamUsers), s.APIMiddleware(RouteUser)...))
	s.RegisterRouteFunc("PATCH "+RouteUser, ChainMiddleware(s.ItemHandler(upstreamUsers), s.APIMiddleware(RouteUser)...))
	s.RegisterRouteFunc("DELETE "+RouteUser, ChainMiddleware(s.ItemHandler(upstreamUsers), s.APIMiddleware(RouteUser)...))

	// ROLES
	s.RegisterRouteFunc("GET "+RouteRoles, ChainMiddleware(s.ListHandler(upstreamRoles), s.APIMiddleware(RouteRoles)...))
	s.RegisterRouteFunc("POST "+RouteRoles, ChainMiddleware(s.CreateHandler(upstreamRoles, nil), s.APIMiddleware(RouteRoles)...))
	s.RegisterRouteFunc("GET "+RouteRole, ChainMiddleware(s.ItemHandler(upstreamRoles), s.APIMiddleware(RouteRole)...))
	s.RegisterRouteFunc("PATCH "+RouteRole, ChainMiddleware(s.ItemHandler(upstreamRoles), s.APIMiddleware(RouteRole)...))
	s.RegisterRouteFunc("DELETE "+RouteRole, ChainMiddleware(s.ItemHandler(upstreamRoles), s.APIMiddleware(RouteRole)...))

	// CORS preflight for every API route
	s.RegisterRouteFunc("OPTIONS /api/", ChainMiddleware(func(w http.ResponseWriter, r *http.Request) {}, s.CorsMiddleware))

	s.RegisterRouteHandler("GET "+RouteMetrics, s.metricsHandler())
}
