package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ebogdum/vizgate/auth"
	"github.com/ebogdum/vizgate/check"
)

// V1CheckName handles GET /v1/check/{kind}
// @Summary Check whether a name is already taken
// @Description Uniqueness failures are reported in the body with status 200
// @Tags check
// @Param kind path string true "Entity kind"
// @Param name query string true "Candidate name"
// @Param id query int false "Id of the entity being renamed"
// @Param scopeId query int false "Parent organization, project or portal id"
// @Success 200 {object} check.Result
// @Failure 400 {object} ErrorResponse "Bad Request"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Router /v1/check/{kind} [get]
func V1CheckName(checker *check.Checker, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := optionalInt(r.URL.Query().Get("id"))
		if err != nil {
			SendErrorResponse(w, logger, http.StatusBadRequest, "invalid id")
			return
		}
		scopeID, err := optionalInt(r.URL.Query().Get("scopeId"))
		if err != nil {
			SendErrorResponse(w, logger, http.StatusBadRequest, "invalid scopeId")
			return
		}

		req := check.Request{
			Kind:    check.Kind(chi.URLParam(r, "kind")),
			Name:    r.URL.Query().Get("name"),
			ID:      id,
			ScopeID: scopeID,
		}

		header := ""
		if h := r.Header.Get("Authorization"); auth.HasBearer(h) {
			header = h
		}

		res := checker.Check(r.Context(), req, header)
		if res.Token != "" {
			w.Header().Set("Authorization", auth.BearerPrefix+" "+res.Token)
		}
		SendJSONResponse(w, logger, http.StatusOK, res)
	}
}

func optionalInt(raw string) (*int64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
