package logger_test

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantdb/pkg/logger"
)

func TestGroup(t *testing.T) {
	t.Parallel()

	attr := logger.Group("pool", slog.Int("total", 10), slog.Int("idle", 2))
	require.Equal(t, "pool", attr.Key)
	require.Equal(t, slog.KindGroup, attr.Value.Kind())
	g := attr.Value.Group()
	require.Len(t, g, 2)
	assert.Equal(t, "total", g[0].Key)
	assert.Equal(t, "idle", g[1].Key)
}

func TestErrors(t *testing.T) {
	t.Parallel()

	err1 := errors.New("first")
	err2 := errors.New("second")

	attr := logger.Errors(err1, nil, err2)
	require.Equal(t, "errors", attr.Key)
	g := attr.Value.Group()
	require.Len(t, g, 2)
	assert.Equal(t, err1, g[0].Value.Any())
	assert.Equal(t, err2, g[1].Value.Any())

	assert.True(t, logger.Errors(nil).Equal(slog.Attr{}))
}

func TestError(t *testing.T) {
	t.Parallel()

	err := errors.New("boom")
	attr := logger.Error(err)
	require.Equal(t, "error", attr.Key)
	assert.Equal(t, err, attr.Value.Any())
	assert.True(t, logger.Error(nil).Equal(slog.Attr{}))
}

func TestDomainAttrs(t *testing.T) {
	t.Parallel()

	attr := logger.TenantID("acme")
	assert.Equal(t, "tenant_id", attr.Key)
	assert.Equal(t, "acme", attr.Value.String())
	assert.True(t, logger.TenantID("").Equal(slog.Attr{}))

	assert.Equal(t, "R1", logger.RelationID("R1", "").Value.String())
	assert.Equal(t, "R1/pkgA", logger.RelationID("R1", "pkgA").Value.String())
	assert.True(t, logger.RelationID("", "pkgA").Equal(slog.Attr{}))

	assert.Equal(t, "kind", logger.Kind("direct").Key)
	assert.Equal(t, "state", logger.State("active").Key)
	assert.Equal(t, "step", logger.Step("close_conn").Key)
	assert.Equal(t, int64(3), logger.Count(3).Value.Int64())
	assert.Equal(t, time.Second, logger.Duration(time.Second).Value.Duration())
	assert.True(t, logger.RequestID("").Equal(slog.Attr{}))
}
