package admin_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantdb/pkg/logger"
	"github.com/dmitrymomot/tenantdb/pkg/tenant"
	"github.com/dmitrymomot/tenantdb/svc/admin"
)

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Tenants(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	h := admin.NewHandler(f.svc, logger.Discard()).Routes()

	rec := do(t, h, http.MethodPost, "/tenants",
		`{"id":"acme","kind":"jdbc","url":"postgres://localhost/acme","username":"app","password":"secret"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "secret")

	var created tenant.Record
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, tenant.KindDirect, created.Kind)
	assert.True(t, f.reg.Has("acme"))

	rec = do(t, h, http.MethodPost, "/tenants", `{"id":"acme","url":"postgres://localhost/acme"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodGet, "/tenants/acme", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/tenants?keyword=ac", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []tenant.Record
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Len(t, list, 1)

	rec = do(t, h, http.MethodPut, "/tenants/acme/active", `{"active":false}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, f.reg.Has("acme"))

	rec = do(t, h, http.MethodPut, "/tenants/acme", `{"kind":"direct","url":"postgres://replica/acme","display_name":"Acme"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, f.reg.Has("acme"))

	rec = do(t, h, http.MethodDelete, "/tenants/acme", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodGet, "/tenants/acme", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_BadRequests(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	h := admin.NewHandler(f.svc, logger.Discard()).Routes()

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"malformed json", http.MethodPost, "/tenants", `{"id":`},
		{"unknown field", http.MethodPost, "/tenants", `{"id":"a","bogus":1}`},
		{"unknown kind", http.MethodPost, "/tenants", `{"id":"a","kind":"ldap"}`},
		{"unknown kind filter", http.MethodGet, "/tenants?kind=ldap", ""},
		{"bad relation id", http.MethodDelete, "/relations/abc", ""},
		{"empty relation", http.MethodPost, "/relations", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestHandler_Relations(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	h := admin.NewHandler(f.svc, logger.Discard()).Routes()

	rec := do(t, h, http.MethodPost, "/tenants", `{"id":"acme","url":"postgres://localhost/acme"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodPost, "/relations", `{"relation_id":"shop-1","tenant_id":"ghost"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/relations", `{"relation_id":"shop-1","tenant_id":"acme"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var rel tenant.Relation
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&rel))
	require.NotZero(t, rel.ID)

	rec = do(t, h, http.MethodGet, "/relations?relation_id=shop-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []tenant.Relation
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Len(t, list, 1)

	path := "/relations/" + strconv.FormatInt(rel.ID, 10)
	rec = do(t, h, http.MethodPut, path, `{"relation_id":"shop-1","qualifier":"eu","tenant_id":"acme"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	id, err := f.rel.Resolve("shop-1", "eu")
	require.NoError(t, err)
	assert.Equal(t, "acme", id)

	rec = do(t, h, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/stats", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "acme")
}
