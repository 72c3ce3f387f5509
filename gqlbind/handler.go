package gqlbind

import (
	"encoding/json"
	"net/http"

	"github.com/graphql-go/graphql"
	"github.com/jjeffery/sqlload"
)

// Request is the body of a GraphQL request.
type Request struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName,omitempty"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
}

// SessionFunc returns the session for one HTTP request.
type SessionFunc func(r *http.Request) *sqlload.Session

// Handler serves GraphQL requests, with a new session for each request.
type Handler struct {
	Schema     graphql.Schema
	NewSession SessionFunc
}

// NewHandler returns a handler for the schema.
func NewHandler(schema graphql.Schema, newSession SessionFunc) *Handler {
	return &Handler{
		Schema:     schema,
		NewSession: newSession,
	}
}

// ServeHTTP implements the http.Handler interface. Queries are accepted
// as a JSON body with POST, or in the "query" parameter with GET.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req Request
	switch r.Method {
	case http.MethodGet:
		req.Query = r.URL.Query().Get("query")
		req.OperationName = r.URL.Query().Get("operationName")
		if vars := r.URL.Query().Get("variables"); vars != "" {
			if err := json.Unmarshal([]byte(vars), &req.Variables); err != nil {
				http.Error(w, "invalid variables", http.StatusBadRequest)
				return
			}
		}
	case http.MethodPost:
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if req.Query == "" {
		http.Error(w, "missing query", http.StatusBadRequest)
		return
	}

	sess := h.NewSession(r)
	defer sess.Close()
	result := graphql.Do(graphql.Params{
		Schema:         h.Schema,
		RequestString:  req.Query,
		OperationName:  req.OperationName,
		VariableValues: req.Variables,
		Context:        sqlload.NewContext(r.Context(), sess),
	})

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}
