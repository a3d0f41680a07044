package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/tcerr"
)

// errorBody is the JSON shape every non-2xx response carries, sufficient
// for a client to distinguish failure kinds without parsing prose
// (spec.md §7: "the core recovers nothing locally; all errors surface
// with a message string sufficient for the client").
type errorBody struct {
	Kind     string `json:"kind"`
	Message  string `json:"message"`
	Resource string `json:"resource,omitempty"`
	Ability  string `json:"ability,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	kind := tcerr.KindOf(err)
	body := errorBody{Kind: string(kind), Message: err.Error()}
	if te, ok := err.(*tcerr.Error); ok {
		body.Resource = te.Resource
		body.Ability = te.Ability
	}
	writeJSON(w, kind.HTTPStatus(), body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
