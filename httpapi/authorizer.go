package httpapi

import (
	"net/http"
)

// AuthorizerRequest is a gateway's token authorization request.
type AuthorizerRequest struct {
	Type               string `json:"type"`
	AuthorizationToken string `json:"authorizationToken"`
	MethodArn          string `json:"methodArn"`
}

// authorizeHandler exposes the gate to gateways that delegate authorization.
// Both outcomes are a 200 carrying the decision; only a malformed request
// body is an error.
func authorizeHandler(gate Authorizer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AuthorizerRequest
		if err := decodeJSON(r, &req); err != nil {
			WriteError(r.Context(), w, nil, err)
			return
		}
		writeJSON(w, http.StatusOK, gate.Authorize(r.Context(), req.AuthorizationToken))
	}
}
