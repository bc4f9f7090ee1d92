// Package logger builds the *slog.Logger used across tenantdb.
//
// New applies functional options (format, level, static attributes) and wraps
// the handler with LogHandlerDecorator, which runs ContextExtractor callbacks
// on every record. Register tenant.LoggerExtractor to stamp each record with
// the tenant selected in the record's context:
//
//	log := logger.New(
//	    logger.WithService("tenantdb", cfg.Env),
//	    logger.WithContextExtractors(tenant.LoggerExtractor()),
//	)
//	log.InfoContext(ctx, "tenant provisioned", logger.Kind("direct"))
//
// Attribute helpers in attr.go (TenantID, RelationID, Kind, Error, ...) keep
// key names consistent. Helpers that take an optional value return an empty
// slog.Attr for the zero value, which slog drops.
package logger
