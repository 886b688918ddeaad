//nolint:all
package model

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
)

// ImplResponse defines an implementation response with error code and the associated body
type ImplResponse struct {
	Code int
	Body interface{}
}

// A Route defines the parameters for an api endpoint
type Route struct {
	Method      string
	Pattern     string
	HandlerFunc http.HandlerFunc
}

// Routes is a map of defined api endpoints
type Routes map[string]Route

// Router defines the required methods for retrieving api routes
type Router interface {
	Routes() Routes
}

// Mount registers the routes of every api router below basePath. Routes are
// registered in name order so that conflicting patterns fail deterministically.
func Mount(r chi.Router, basePath string, routers ...Router) {
	for _, api := range routers {
		routes := api.Routes()
		names := make([]string, 0, len(routes))
		for name := range routes {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			route := routes[name]
			r.Method(route.Method, basePath+route.Pattern, route.HandlerFunc)
		}
	}
}
