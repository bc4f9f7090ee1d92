package tenantdb

import (
	"errors"
	"fmt"

	"github.com/dmitrymomot/tenantdb/pkg/config"
	"github.com/dmitrymomot/tenantdb/pkg/tenant"
)

// StaticTenants is the content of the static tenants file:
//
//	tenants:
//	  - id: acme
//	    kind: direct
//	    default: true
//	    conn:
//	      url: postgres://db-1/acme
//	      password: ${ACME_DB_PASSWORD}
//	  - id: reports
//	    kind: bean
//	    name: reportingDataSource
//	relations:
//	  - relation_id: R1
//	    tenant_id: acme
type StaticTenants struct {
	Tenants   []tenant.Record   `yaml:"tenants"`
	Relations []tenant.Relation `yaml:"relations"`
}

// LoadStaticTenants reads and validates a static tenants file. Static tenants
// are always active; legacy kind names are accepted.
func LoadStaticTenants(path string) (StaticTenants, error) {
	var st StaticTenants
	if err := config.LoadYAML(path, &st); err != nil {
		return StaticTenants{}, err
	}
	if err := st.normalize(); err != nil {
		return StaticTenants{}, err
	}
	return st, nil
}

func (st *StaticTenants) normalize() error {
	seen := make(map[string]struct{}, len(st.Tenants))
	for i := range st.Tenants {
		rec := &st.Tenants[i]
		if rec.Kind == "" {
			rec.Kind = tenant.KindDirect
		}
		kind, err := tenant.ParseKind(string(rec.Kind))
		if err != nil {
			return fmt.Errorf("static tenant %q: %w", rec.ID, err)
		}
		rec.Kind = kind
		rec.Active = true

		if err := rec.Validate(); err != nil {
			return err
		}
		if _, dup := seen[rec.ID]; dup {
			return fmt.Errorf("%w: static tenant %q declared twice", tenant.ErrAlreadyExists, rec.ID)
		}
		seen[rec.ID] = struct{}{}
	}

	if _, err := tenant.ValidateDefaults(st.Tenants); err != nil {
		return err
	}

	var errs []error
	for _, rel := range st.Relations {
		if err := rel.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Default returns the static tenant flagged default, if any.
func (st StaticTenants) Default() string {
	id, _ := tenant.ValidateDefaults(st.Tenants)
	return id
}
