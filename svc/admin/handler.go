package admin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/tenantdb"
	"github.com/dmitrymomot/tenantdb/pkg/lifecycle"
	"github.com/dmitrymomot/tenantdb/pkg/logger"
	"github.com/dmitrymomot/tenantdb/pkg/tenant"
)

// TenantRequest is the JSON body for creating or updating a tenant.
// Unlike tenant.Record it carries the connection password.
type TenantRequest struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	Driver      string `json:"driver"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	Extension   string `json:"extension"`
	Default     bool   `json:"default"`
	Active      *bool  `json:"active"`
	Remark      string `json:"remark"`
}

// Record converts the request. Kind defaults to direct and Active to true.
func (r TenantRequest) Record() (tenant.Record, error) {
	if r.Kind == "" {
		r.Kind = string(tenant.KindDirect)
	}
	kind, err := tenant.ParseKind(r.Kind)
	if err != nil {
		return tenant.Record{}, err
	}
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return tenant.Record{
		ID:          r.ID,
		DisplayName: r.DisplayName,
		Kind:        kind,
		Name:        r.Name,
		Conn: tenant.ConnParams{
			URL:       r.URL,
			Driver:    r.Driver,
			Username:  r.Username,
			Password:  r.Password,
			Extension: r.Extension,
		},
		Default: r.Default,
		Active:  active,
		Remark:  r.Remark,
	}, nil
}

type activeRequest struct {
	Active bool `json:"active"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler exposes Service over HTTP.
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandler creates the HTTP handler.
func NewHandler(svc *Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, logger: log.With(logger.Component("admin.http"))}
}

// Routes mounts the tenant and relation endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/tenants", func(r chi.Router) {
		r.Get("/", h.listTenants)
		r.Post("/", h.addTenant)
		r.Get("/{id}", h.getTenant)
		r.Put("/{id}", h.updateTenant)
		r.Delete("/{id}", h.removeTenant)
		r.Put("/{id}/active", h.setActive)
	})

	r.Route("/relations", func(r chi.Router) {
		r.Get("/", h.listRelations)
		r.Post("/", h.addRelation)
		r.Put("/{id}", h.updateRelation)
		r.Delete("/{id}", h.removeRelation)
	})

	r.Get("/stats", h.stats)
	r.Post("/reload", h.reload)
	r.Post("/provision", h.provisionPending)
	return r
}

func (h *Handler) listTenants(w http.ResponseWriter, r *http.Request) {
	f := tenant.Filter{Keyword: r.URL.Query().Get("keyword")}
	if k := r.URL.Query().Get("kind"); k != "" {
		kind, err := tenant.ParseKind(k)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		f.Kind = kind
	}

	out, err := h.svc.ListTenants(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) addTenant(w http.ResponseWriter, r *http.Request) {
	var req TenantRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := req.Record()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out, err := h.svc.AddTenant(r.Context(), rec)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *Handler) getTenant(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.GetTenant(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) updateTenant(w http.ResponseWriter, r *http.Request) {
	var req TenantRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.ID = chi.URLParam(r, "id")
	rec, err := req.Record()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out, err := h.svc.UpdateTenant(r.Context(), rec)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) removeTenant(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RemoveTenant(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request) {
	var req activeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.SetTenantActive(r.Context(), chi.URLParam(r, "id"), req.Active); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listRelations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out, err := h.svc.ListRelations(r.Context(), tenant.RelationFilter{
		RelationID: q.Get("relation_id"),
		Qualifier:  q.Get("qualifier"),
		TenantID:   q.Get("tenant_id"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) addRelation(w http.ResponseWriter, r *http.Request) {
	var rel tenant.Relation
	if !h.decode(w, r, &rel) {
		return
	}
	rel.ID = 0

	out, err := h.svc.AddRelation(r.Context(), rel)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *Handler) updateRelation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.relationID(w, r)
	if !ok {
		return
	}
	var rel tenant.Relation
	if !h.decode(w, r, &rel) {
		return
	}
	rel.ID = id

	out, err := h.svc.UpdateRelation(r.Context(), rel)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) removeRelation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.relationID(w, r)
	if !ok {
		return
	}
	if err := h.svc.RemoveRelation(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Stats())
}

type reloadResponse struct {
	Tenants     int    `json:"tenants"`
	Provisioned int    `json:"provisioned,omitempty"`
	Error       string `json:"error,omitempty"`
}

// reload answers 200 even when some tenants failed; the failures are in the body.
func (h *Handler) reload(w http.ResponseWriter, r *http.Request) {
	resp := reloadResponse{}
	if err := h.svc.Reload(r.Context()); err != nil {
		resp.Error = err.Error()
	}
	resp.Tenants = len(h.svc.Stats())
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) provisionPending(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.ProvisionPending(r.Context())
	resp := reloadResponse{Provisioned: n, Tenants: len(h.svc.Stats())}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) relationID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.fail(w, r, errors.Join(ErrInvalidRequest, err))
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		h.fail(w, r, errors.Join(ErrInvalidRequest, err))
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusCode(err)
	if code >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "admin request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logger.Error(err),
		)
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func statusCode(err error) int {
	if errors.Is(err, ErrInvalidRequest) || errors.Is(err, tenant.ErrMultipleDefaults) {
		return http.StatusBadRequest
	}
	if errors.Is(err, lifecycle.ErrBusy) {
		return http.StatusConflict
	}
	return tenantdb.StatusCode(err)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
