package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ebogdum/vizgate/auth"
	"github.com/ebogdum/vizgate/store"
)

// IdentityResponse describes who the gate resolved a request to
type IdentityResponse struct {
	Platform *store.Platform `json:"platform"`
	User     *store.User     `json:"user"`
}

// V1Identity handles GET /v1/identity and /v1/share/identity
// @Summary Resolved caller identity
// @Description Returns the platform owning the auth code and the user, when one was resolved
// @Tags identity
// @Param auth_code query string true "Platform auth code"
// @Success 200 {object} IdentityResponse
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Router /v1/identity [get]
func V1Identity(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		platform, ok := auth.PlatformFromContext(r.Context())
		if !ok {
			SendErrorResponse(w, logger, http.StatusUnauthorized, auth.MessageAuthentication)
			return
		}
		user, _ := auth.UserFromContext(r.Context())

		SendJSONResponse(w, logger, http.StatusOK, IdentityResponse{Platform: platform, User: user})
	}
}

// V1Ping handles GET /v1/ping, which is exempt from the gate
func V1Ping(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SendJSONResponse(w, logger, http.StatusOK, map[string]string{"status": "ok"})
	}
}
