// Package dispatch answers "which persistence context serves this call right
// now". Router reads the tenant selected in the context (package tenant),
// falls back to the configured default tenant when nothing is selected, and
// looks the id up in the registry.
//
//	router := dispatch.New(reg, dispatch.WithDefault("acme"))
//	pc, err := router.Current(ctx)
//	if errors.Is(err, tenant.ErrTenantUnavailable) {
//	    // nothing selected and no default, or the tenant is not provisioned
//	}
//
// Router never caches bundles: a decommissioned tenant is unavailable on the
// next call. Use orm.Current(ctx, router) to obtain a typed *gorm.DB.
package dispatch
