// Package routes declares HTTP routes as data so handlers can be grouped
// and registered in one pass.
package routes

import "net/http"

// Route binds one HTTP method and path pattern to a handler.
type Route struct {
	Method  string
	Pattern string
	Handler http.HandlerFunc
}
