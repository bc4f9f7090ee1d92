package tenantdb

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dmitrymomot/tenantdb/pkg/logger"
	"github.com/dmitrymomot/tenantdb/pkg/tenant"
)

// ErrorHandler writes the response for a request whose tenant could not be selected.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

type middlewareConfig struct {
	resolver     tenant.Resolver
	errorHandler ErrorHandler
	skipPaths    []string
}

// MiddlewareOption configures Middleware.
type MiddlewareOption func(*middlewareConfig)

// WithResolver replaces the default header resolvers.
func WithResolver(resolver tenant.Resolver) MiddlewareOption {
	return func(c *middlewareConfig) {
		if resolver != nil {
			c.resolver = resolver
		}
	}
}

// WithErrorHandler replaces the default plain-text error responses.
func WithErrorHandler(h ErrorHandler) MiddlewareOption {
	return func(c *middlewareConfig) {
		if h != nil {
			c.errorHandler = h
		}
	}
}

// WithSkipPaths leaves requests under these path prefixes without a scope.
func WithSkipPaths(prefixes ...string) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.skipPaths = append(c.skipPaths, prefixes...)
	}
}

// Middleware gives every request a fresh selection scope, selects the tenant
// the request names (directly or through a relation) and clears the scope
// when the handler returns. Requests that name nothing run unselected and
// dispatch to the default tenant.
func (r *Router) Middleware(opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := &middlewareConfig{
		resolver: tenant.NewCompositeResolver(
			tenant.NewHeaderResolver(""),
			tenant.NewRelationHeaderResolver("", ""),
		),
		errorHandler: defaultErrorHandler,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			for _, skip := range cfg.skipPaths {
				if strings.HasPrefix(req.URL.Path, skip) {
					next.ServeHTTP(w, req)
					return
				}
			}

			ctx := tenant.NewContext(req.Context())
			defer tenant.Clear(ctx)

			target, err := cfg.resolver(req)
			if err != nil {
				cfg.errorHandler(w, req, err)
				return
			}

			switch {
			case target.TenantID != "":
				err = tenant.Set(ctx, target.TenantID)
			case target.RelationID != "":
				_, err = r.SelectTenantByRelation(ctx, target.RelationID, target.Qualifier)
			}
			if err != nil {
				r.logger.DebugContext(ctx, "tenant selection failed",
					slog.String("relation_id", target.RelationID),
					logger.Error(err),
				)
				cfg.errorHandler(w, req, err)
				return
			}

			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}

// StatusCode maps router errors to HTTP status codes. Unavailability wins
// over not-found: a dispatch to an unregistered tenant carries both.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, tenant.ErrInvalidRecord), errors.Is(err, tenant.ErrInvalidRelation):
		return http.StatusBadRequest
	case errors.Is(err, tenant.ErrTenantUnavailable), errors.Is(err, tenant.ErrResourceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, tenant.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, tenant.ErrAlreadyExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func defaultErrorHandler(w http.ResponseWriter, _ *http.Request, err error) {
	code := StatusCode(err)
	http.Error(w, http.StatusText(code), code)
}
