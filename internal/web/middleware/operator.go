package middleware

import (
	"net/http"
	"strings"

	"github.com/easyvol/csvimport/internal/core"
)

// OperatorHeader carries the name of the person running an import. The
// surrounding application authenticates and sets it.
const OperatorHeader = "X-Operator"

// Operator copies OperatorHeader into the request context.
func Operator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if op := strings.TrimSpace(r.Header.Get(OperatorHeader)); op != "" {
			r = r.WithContext(core.ContextWithOperator(r.Context(), op))
		}
		next.ServeHTTP(w, r)
	})
}
