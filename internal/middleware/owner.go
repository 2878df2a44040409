package middleware

import (
	"net/http"
	"strings"

	"github.com/andrewdmason/undercurrent-sub000/internal/httputil"
)

// OwnerMiddleware puts the owner id of the X-Owner-ID header into the request
// context. Requests without one get defaultOwner, or a 400 when that is empty.
// Paths in public skip the check.
func OwnerMiddleware(defaultOwner string, public ...string) func(http.Handler) http.Handler {
	skip := make(map[string]bool, len(public))
	for _, p := range public {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			ownerID := strings.TrimSpace(r.Header.Get(httputil.HeaderOwnerID))
			if ownerID == "" {
				ownerID = defaultOwner
			}
			if ownerID == "" {
				httputil.RespondErrorWithExtras(w, http.StatusBadRequest,
					"missing owner id",
					map[string]interface{}{"header": httputil.HeaderOwnerID},
				)
				return
			}

			next.ServeHTTP(w, httputil.WithOwnerID(r, ownerID))
		})
	}
}
