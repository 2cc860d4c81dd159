package hierarchy

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/warden/pkg/httputil"
)

// Handlers exposes one engine's operations over HTTP. The same handler type
// serves both catalogs; the base path is derived from the kind
// ("/v1/roles", "/v1/permissions").
type Handlers struct {
	engine *Engine
}

// NewHandlers creates HTTP handlers for the engine
func NewHandlers(engine *Engine) *Handlers {
	return &Handlers{engine: engine}
}

// RegisterRoutes registers the kind's route set
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	base := "/v1/" + h.engine.Kind().Table()

	router.HandleFunc(base, h.Create).Methods("POST")
	router.HandleFunc(base, h.List).Methods("GET")
	router.HandleFunc(base+"/slice", h.ListSlice).Methods("GET")
	router.HandleFunc(base+"/archived", h.ListArchived).Methods("GET")
	router.HandleFunc(base+"/roots", h.ListRoots).Methods("GET")
	router.HandleFunc(base+"/batch", h.Batch).Methods("GET")
	router.HandleFunc(base+"/code/{code}", h.GetByCode).Methods("GET")
	router.HandleFunc(base+"/code/{code}", h.DeleteByCode).Methods("DELETE")
	router.HandleFunc(base+"/{id:[0-9]+}", h.Get).Methods("GET")
	router.HandleFunc(base+"/{id:[0-9]+}", h.Update).Methods("PUT")
	router.HandleFunc(base+"/{id:[0-9]+}", h.Delete).Methods("DELETE")
	router.HandleFunc(base+"/{id:[0-9]+}/archive", h.Archive).Methods("POST")
	router.HandleFunc(base+"/{id:[0-9]+}/recover", h.Recover).Methods("POST")
	router.HandleFunc(base+"/{id:[0-9]+}/ancestors", h.ListAncestors).Methods("GET")
	router.HandleFunc(base+"/{id:[0-9]+}/descendants", h.ListDescendants).Methods("GET")
	router.HandleFunc(base+"/{id:[0-9]+}/descendants", h.AddDescendant).Methods("POST")
	router.HandleFunc(base+"/{id:[0-9]+}/descendants/direct", h.ListDirectDescendants).Methods("GET")
	router.HandleFunc(base+"/{id:[0-9]+}/descendants/{descendant_id:[0-9]+}", h.DeletePath).Methods("DELETE")
	router.HandleFunc(base+"/{id:[0-9]+}/move", h.MoveNode).Methods("POST")
	router.HandleFunc(base+"/{id:[0-9]+}/ancestor-paths", h.AncestorPaths).Methods("GET")
}

// writeEngineError maps domain errors onto HTTP status codes.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case IsNotFoundError(err):
		httputil.WriteNotFoundError(w, err.Error())
	case errors.Is(err, ErrDuplicateCode), errors.Is(err, ErrDuplicateID), errors.Is(err, ErrEdgeExists):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, ErrSelfReferential), errors.Is(err, ErrCycleDetected), errors.Is(err, ErrPrimaryKeyRequired):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, ErrUnauthorized):
		httputil.WriteUnauthorized(w, err.Error())
	default:
		httputil.WriteInternalError(w, err)
	}
}

func parsePage(r *http.Request) PageRequest {
	page, _ := httputil.ParseQueryInt(r, "page", 1)
	size, _ := httputil.ParseQueryInt(r, "size", 20)
	return PageRequest{Page: page, Size: size}.Normalize()
}

func parseFilter(r *http.Request) Filter {
	return Filter{
		Code: httputil.ParseQueryString(r, "code", ""),
		Name: httputil.ParseQueryString(r, "name", ""),
	}
}

// Create adds a new node
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	var payload NodePayload
	if !httputil.ParseJSONOrError(w, r, &payload) {
		return
	}
	if payload.Code == nil || *payload.Code == "" {
		httputil.WriteValidationError(w, "code is required")
		return
	}
	if payload.Name == nil || *payload.Name == "" {
		httputil.WriteValidationError(w, "name is required")
		return
	}

	node, err := h.engine.AddNode(r.Context(), payload)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteCreated(w, node)
}

// Get returns a node by id
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	node, err := h.engine.FindByID(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteSuccess(w, node)
}

// GetByCode returns a node by code
func (h *Handlers) GetByCode(w http.ResponseWriter, r *http.Request) {
	code, ok := httputil.ParsePathStringOrError(w, r, "code")
	if !ok {
		return
	}

	node, err := h.engine.FindByCode(r.Context(), code)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteSuccess(w, node)
}

// Update modifies a node, returning the before/after snapshot
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var payload NodePayload
	if !httputil.ParseJSONOrError(w, r, &payload) {
		return
	}

	snapshot, err := h.engine.UpdateNode(r.Context(), id, payload)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteSuccess(w, snapshot)
}

// Delete hard-deletes a node by id
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.engine.DeleteByID(r.Context(), id); err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// DeleteByCode hard-deletes a node by code
func (h *Handlers) DeleteByCode(w http.ResponseWriter, r *http.Request) {
	code, ok := httputil.ParsePathStringOrError(w, r, "code")
	if !ok {
		return
	}

	if err := h.engine.DeleteByCode(r.Context(), code); err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// Archive moves a node to the archive and schedules its hard delete
func (h *Handlers) Archive(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.engine.ArchiveByID(r.Context(), id); err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// Recover restores an archived node's row
func (h *Handlers) Recover(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	node, err := h.engine.RecoverFromArchiveByID(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteSuccess(w, node)
}

// List returns a filtered page of nodes with a total count
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	page, err := h.engine.FindAll(r.Context(), parseFilter(r), parsePage(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteSuccess(w, page)
}

// ListSlice returns a filtered page without a total count
func (h *Handlers) ListSlice(w http.ResponseWriter, r *http.Request) {
	slice, err := h.engine.FindAllSlice(r.Context(), parseFilter(r), parsePage(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteSuccess(w, slice)
}

// ListArchived returns a filtered page of archived nodes
func (h *Handlers) ListArchived(w http.ResponseWriter, r *http.Request) {
	page, err := h.engine.FindArchivedAll(r.Context(), parseFilter(r), parsePage(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteSuccess(w, page)
}

// ListRoots returns the page of nodes with no ancestors
func (h *Handlers) ListRoots(w http.ResponseWriter, r *http.Request) {
	page, err := h.engine.FindRoots(r.Context(), parsePage(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteSuccess(w, page)
}

// Batch resolves ids or codes passed as comma-separated query parameters
func (h *Handlers) Batch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if rawIDs := httputil.ParseQueryString(r, "ids", ""); rawIDs != "" {
		var ids []int64
		for _, part := range strings.Split(rawIDs, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				httputil.WriteBadRequest(w, "invalid id: "+part)
				return
			}
			ids = append(ids, id)
		}
		nodes, err := h.engine.FindAllByID(ctx, ids)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		httputil.WriteSuccess(w, nodes)
		return
	}

	if rawCodes := httputil.ParseQueryString(r, "codes", ""); rawCodes != "" {
		var codes []string
		for _, part := range strings.Split(rawCodes, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				codes = append(codes, trimmed)
			}
		}
		nodes, err := h.engine.FindByCodeIn(ctx, codes)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		httputil.WriteSuccess(w, nodes)
		return
	}

	httputil.WriteBadRequest(w, "ids or codes query parameter is required")
}

// ListAncestors returns every transitive ancestor, nearest first
func (h *Handlers) ListAncestors(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	nodes, err := h.engine.FindAncestors(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteSuccess(w, nodes)
}

// ListDescendants returns the page of all transitive descendants
func (h *Handlers) ListDescendants(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	page, err := h.engine.FindDescendants(r.Context(), id, parsePage(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteSuccess(w, page)
}

// ListDirectDescendants returns the page of depth-1 children
func (h *Handlers) ListDirectDescendants(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	page, err := h.engine.FindDirectDescendants(r.Context(), id, parsePage(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteSuccess(w, page)
}

// AddDescendant links a node directly under the path ancestor and returns
// the created edge
func (h *Handlers) AddDescendant(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		DescendantID int64 `json:"descendant_id"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequirePositive(w, req.DescendantID, "descendant_id") {
		return
	}

	if err := h.engine.AddDescendant(r.Context(), id, req.DescendantID); err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteCreated(w, Edge{AncestorID: id, DescendantID: req.DescendantID, Depth: 1})
}

// DeletePath removes the direct edge between the path pair
func (h *Handlers) DeletePath(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	descendantID, ok := httputil.ParsePathInt64OrError(w, r, "descendant_id")
	if !ok {
		return
	}

	if err := h.engine.DeletePath(r.Context(), id, descendantID); err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// MoveNode re-parents the path node from one ancestor to another
func (h *Handlers) MoveNode(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		OriginalAncestorID int64 `json:"original_ancestor_id"`
		TargetAncestorID   int64 `json:"target_ancestor_id"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequirePositive(w, req.OriginalAncestorID, "original_ancestor_id") {
		return
	}
	if !httputil.RequirePositive(w, req.TargetAncestorID, "target_ancestor_id") {
		return
	}

	if err := h.engine.Move(r.Context(), req.OriginalAncestorID, req.TargetAncestorID, id); err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// AncestorPaths renders every root-to-node chain as a path string
func (h *Handlers) AncestorPaths(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	paths, err := h.engine.FindAllAncestorPathStrings(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string][]string{"paths": paths})
}
