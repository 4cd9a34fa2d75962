package handler

import (
	"log/slog"
	"net/http"

	"github.com/ambigdb/ambigdb/internal/connector"
	"github.com/ambigdb/ambigdb/internal/failure"
	"github.com/ambigdb/ambigdb/internal/graph"
	"github.com/ambigdb/ambigdb/internal/model"
	"github.com/ambigdb/ambigdb/internal/schema"
	"github.com/ambigdb/ambigdb/internal/server/middleware"
)

// IntrospectRequest names the candidate database to describe.
type IntrospectRequest struct {
	DBID   string `json:"db_id"`
	Driver string `json:"driver,omitempty"`
	DSN    string `json:"dsn"`
	Schema string `json:"schema,omitempty"`
}

// IntrospectResponse is the descriptor of a candidate plus the table pairs
// its foreign keys connect.
type IntrospectResponse struct {
	Descriptor *model.SchemaDescriptor `json:"descriptor"`
	Adjacent   [][2]string             `json:"adjacent"`
}

// IntrospectHandler serves schema descriptors of candidate databases.
type IntrospectHandler struct {
	registry *connector.Registry
	logger   *slog.Logger
}

// NewIntrospectHandler creates an IntrospectHandler.
func NewIntrospectHandler(registry *connector.Registry, logger *slog.Logger) *IntrospectHandler {
	return &IntrospectHandler{registry: registry, logger: logger}
}

// Introspect handles POST /api/v1/introspect. The candidate is read without
// a transaction and left untouched.
func (h *IntrospectHandler) Introspect(w http.ResponseWriter, r *http.Request) {
	var req IntrospectRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.DSN == "" {
		writeError(w, http.StatusBadRequest, "dsn is required")
		return
	}
	if req.DBID == "" {
		req.DBID = "candidate"
	}

	conn, err := h.registry.Open(connector.ConnectionConfig{
		Driver:     req.Driver,
		DSN:        req.DSN,
		SchemaName: req.Schema,
	})
	if err != nil {
		writeFailure(w, failure.Introspection(err, "open candidate %s", req.DBID))
		return
	}
	defer conn.Disconnect()

	logger := middleware.LoggerFrom(r.Context(), h.logger)
	desc, err := schema.Introspect(r.Context(), conn, conn.DB(), req.DBID, logger)
	if err != nil {
		writeFailure(w, err)
		return
	}

	g := graph.New(desc, logger)
	adjacent := [][2]string{}
	tables := desc.RealTables()
	for i, a := range tables {
		for _, b := range tables[i+1:] {
			if g.Adjacent(a, b) {
				adjacent = append(adjacent, [2]string{desc.TableName(a), desc.TableName(b)})
			}
		}
	}
	writeJSON(w, http.StatusOK, IntrospectResponse{Descriptor: desc, Adjacent: adjacent})
}
