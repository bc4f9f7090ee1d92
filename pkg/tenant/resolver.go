package tenant

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Target is what a request names: either a tenant directly or a relation
// that maps to one. The zero value means the request names nothing.
type Target struct {
	TenantID   string
	RelationID string
	Qualifier  string
}

// IsZero reports whether the target names neither a tenant nor a relation.
func (t Target) IsZero() bool {
	return t.TenantID == "" && t.RelationID == ""
}

// Resolver extracts a Target from an HTTP request.
// Returns the zero Target if the request names no tenant, error if extraction failed.
type Resolver func(r *http.Request) (Target, error)

// NewHeaderResolver reads the tenant id from a header (default "X-Tenant-ID").
func NewHeaderResolver(headerName string) Resolver {
	if headerName == "" {
		headerName = "X-Tenant-ID"
	}
	return func(r *http.Request) (Target, error) {
		id := strings.TrimSpace(r.Header.Get(headerName))
		if id == "" {
			return Target{}, nil
		}
		if err := ValidateID(id); err != nil {
			return Target{}, err
		}
		return Target{TenantID: id}, nil
	}
}

// NewRelationHeaderResolver reads a relation id and an optional qualifier
// from headers (defaults "X-Relation-ID" and "X-Relation-Qualifier").
func NewRelationHeaderResolver(relationHeader, qualifierHeader string) Resolver {
	if relationHeader == "" {
		relationHeader = "X-Relation-ID"
	}
	if qualifierHeader == "" {
		qualifierHeader = "X-Relation-Qualifier"
	}
	return func(r *http.Request) (Target, error) {
		rel := strings.TrimSpace(r.Header.Get(relationHeader))
		if rel == "" {
			return Target{}, nil
		}
		return Target{
			RelationID: rel,
			Qualifier:  strings.TrimSpace(r.Header.Get(qualifierHeader)),
		}, nil
	}
}

// NewSubdomainResolver extracts the tenant id from the subdomain, optionally stripping suffix.
// Returns the zero Target for the base domain.
func NewSubdomainResolver(suffix string) Resolver {
	return func(r *http.Request) (Target, error) {
		host := r.Host

		// Remove port if present
		if idx := strings.LastIndex(host, ":"); idx != -1 {
			host = host[:idx]
		}

		originalParts := strings.Split(host, ".")
		if len(originalParts) < 3 {
			return Target{}, nil
		}

		if suffix != "" && strings.HasSuffix(host, suffix) && len(host) > len(suffix) {
			host = host[:len(host)-len(suffix)]
		}

		parts := strings.Split(host, ".")
		if len(parts) == 0 || parts[0] == "" {
			return Target{}, nil
		}

		sub := parts[0]
		if sub == "www" {
			if len(parts) < 2 {
				return Target{}, nil
			}
			sub = parts[1]
		}
		if err := ValidateID(sub); err != nil {
			return Target{}, err
		}
		return Target{TenantID: sub}, nil
	}
}

// NewPathResolver extracts the tenant id from a 1-based path segment
// (e.g. 2 for /tenants/{id}/...).
func NewPathResolver(position int) Resolver {
	return func(r *http.Request) (Target, error) {
		if position < 1 {
			return Target{}, errors.New("invalid path position")
		}

		path := strings.Trim(r.URL.Path, "/")
		if path == "" {
			return Target{}, nil
		}

		parts := strings.Split(path, "/")
		if position > len(parts) {
			return Target{}, nil
		}

		id := parts[position-1]
		if err := ValidateID(id); err != nil {
			return Target{}, err
		}
		return Target{TenantID: id}, nil
	}
}

// NewCompositeResolver tries resolvers in order, returning the first non-zero Target.
func NewCompositeResolver(resolvers ...Resolver) Resolver {
	return func(r *http.Request) (Target, error) {
		var errs []error
		for _, resolve := range resolvers {
			t, err := resolve(r)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if !t.IsZero() {
				return t, nil
			}
		}
		if len(errs) > 0 {
			return Target{}, fmt.Errorf("composite resolver errors: %w", errors.Join(errs...))
		}
		return Target{}, nil
	}
}
