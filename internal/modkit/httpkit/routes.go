package httpkit

import "net/http"

// MountUnder routes a module under prefix with its middleware applied
// to every route the mount callback registers
func MountUnder(r Router, prefix string, mw []func(http.Handler) http.Handler, mount func(Router)) {
	r.Route(prefix, func(sub Router) {
		if len(mw) > 0 {
			sub.Use(mw...)
		}
		mount(sub)
	})
}
