package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ebogdum/vizgate/auth"
	"github.com/ebogdum/vizgate/server/handlers"
)

// V1GateMiddleware runs every request through the gate with the given access
// mode. Denied requests get the outcome's status and message; allowed ones
// carry the resolved platform and user in their context.
func V1GateMiddleware(gate *auth.Gate, mode auth.AccessMode, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			outcome := gate.Evaluate(r.Context(), mode, r)
			if !outcome.Allowed() {
				logger.Debug("Request denied by gate",
					zap.String("mode", mode.String()),
					zap.String("path", r.URL.Path),
					zap.String("request_id", RequestID(r.Context())),
					zap.Int("status_code", outcome.Status),
					zap.Error(outcome.Err))
				handlers.SendErrorResponse(w, logger, outcome.Status, outcome.Message)
				return
			}

			if outcome.Platform != nil {
				r = r.WithContext(auth.WithIdentity(r.Context(), outcome.Platform, outcome.User))
			}
			next.ServeHTTP(w, r)
		})
	}
}
