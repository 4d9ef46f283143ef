package httpx

import (
	"net/http"
)

// RequireRole admits only callers holding the given role.
func RequireRole(role string) Middleware {
	return RequireAnyRole(role)
}

// RequireAnyRole admits callers holding at least one of the listed roles.
func RequireAnyRole(required ...string) Middleware {
	want := make(map[string]struct{}, len(required))
	for _, role := range required {
		want[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Ensure at least one required role is present.
			for _, role := range rolesFromCtx(r.Context()) {
				if _, ok := want[role]; ok {
					next.ServeHTTP(w, r)
					return
				}
			}

			writeRoleError(w, required)
		})
	}
}

// RequireAllRoles admits only callers holding every listed role.
func RequireAllRoles(required ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Build set of roles the caller has.
			have := make(map[string]struct{})
			for _, role := range rolesFromCtx(r.Context()) {
				have[role] = struct{}{}
			}

			// 2. Ensure every required role is present.
			for _, role := range required {
				if _, ok := have[role]; !ok {
					writeRoleError(w, required)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeRoleError(w http.ResponseWriter, required []string) {
	WriteError(w, http.StatusForbidden, ErrorBody{
		Code:    CodeAuthForbidden,
		Message: "insufficient role for this resource",
		Data:    map[string]any{"required": required},
	})
}
