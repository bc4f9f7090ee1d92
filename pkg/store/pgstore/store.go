package pgstore

import (
	"context"
	"embed"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/tenantdb/pkg/pg"
	"github.com/dmitrymomot/tenantdb/pkg/secrets"
	"github.com/dmitrymomot/tenantdb/pkg/tenant"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store is a tenant.Store backed by PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	sealer *secrets.Sealer
}

// Option configures a Store.
type Option func(*Store)

// WithSealer encrypts connection passwords at rest.
func WithSealer(s *secrets.Sealer) Option {
	return func(st *Store) {
		st.sealer = s
	}
}

// New creates a store on pool. Call Migrate before first use.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates or upgrades the tenants and tenant_relations tables.
func Migrate(ctx context.Context, pool *pgxpool.Pool, cfg pg.Config, log *slog.Logger) error {
	if err := pg.Migrate(ctx, pool, migrations, "migrations", cfg, log); err != nil {
		return errors.Join(ErrMigrateFailed, err)
	}
	return nil
}

const recordColumns = `id, display_name, kind, name, url, driver, username, password, extension,
	is_default, active, remark, created_at, updated_at`

func (s *Store) ListActive(ctx context.Context) ([]tenant.Record, error) {
	const query = `SELECT ` + recordColumns + ` FROM tenants WHERE active ORDER BY id`
	return s.queryRecords(ctx, query)
}

func (s *Store) Find(ctx context.Context, f tenant.Filter) ([]tenant.Record, error) {
	const query = `
		SELECT ` + recordColumns + ` FROM tenants
		WHERE ($1 = '' OR kind = $1)
		  AND ($2 = '' OR id ILIKE '%' || $2 || '%')
		ORDER BY id
	`
	return s.queryRecords(ctx, query, string(f.Kind), f.Keyword)
}

func (s *Store) Get(ctx context.Context, id string) (tenant.Record, error) {
	const query = `SELECT ` + recordColumns + ` FROM tenants WHERE id = $1`
	rec, err := s.scanRecord(s.pool.QueryRow(ctx, query, id))
	if pg.IsNotFoundError(err) {
		return tenant.Record{}, tenant.ErrNotFound
	}
	if err != nil {
		return tenant.Record{}, err
	}
	return rec, nil
}

func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tenants WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, errors.Join(ErrQueryFailed, err)
	}
	return exists, nil
}

func (s *Store) Insert(ctx context.Context, r tenant.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	password, err := s.seal(r.ID, r.Conn.Password)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO tenants (id, display_name, kind, name, url, driver, username, password, extension,
			is_default, active, remark, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
	`
	_, err = s.pool.Exec(ctx, query,
		r.ID, r.DisplayName, string(r.Kind), r.Name, r.Conn.URL, r.Conn.Driver, r.Conn.Username, password,
		r.Conn.Extension, r.Default, r.Active, r.Remark,
	)
	if pg.IsDuplicateKeyError(err) {
		return tenant.ErrAlreadyExists
	}
	if err != nil {
		return errors.Join(ErrQueryFailed, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, r tenant.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	password, err := s.seal(r.ID, r.Conn.Password)
	if err != nil {
		return err
	}

	const query = `
		UPDATE tenants SET display_name = $2, kind = $3, name = $4, url = $5, driver = $6, username = $7,
			password = $8, extension = $9, is_default = $10, active = $11, remark = $12, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, query,
		r.ID, r.DisplayName, string(r.Kind), r.Name, r.Conn.URL, r.Conn.Driver, r.Conn.Username, password,
		r.Conn.Extension, r.Default, r.Active, r.Remark,
	)
	if err != nil {
		return errors.Join(ErrQueryFailed, err)
	}
	if tag.RowsAffected() == 0 {
		return tenant.ErrNotFound
	}
	return nil
}

func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE tenants SET active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return errors.Join(ErrQueryFailed, err)
	}
	if tag.RowsAffected() == 0 {
		return tenant.ErrNotFound
	}
	return nil
}

// Delete removes the tenant. Its relations go with it (ON DELETE CASCADE).
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		return errors.Join(ErrQueryFailed, err)
	}
	if tag.RowsAffected() == 0 {
		return tenant.ErrNotFound
	}
	return nil
}

const relationColumns = `id, relation_id, qualifier, tenant_id`

func (s *Store) ListRelations(ctx context.Context) ([]tenant.Relation, error) {
	return s.FindRelations(ctx, tenant.RelationFilter{})
}

func (s *Store) FindRelations(ctx context.Context, f tenant.RelationFilter) ([]tenant.Relation, error) {
	const query = `
		SELECT ` + relationColumns + ` FROM tenant_relations
		WHERE ($1 = '' OR relation_id = $1)
		  AND ($2 = '' OR qualifier = $2)
		  AND ($3 = '' OR tenant_id = $3)
		ORDER BY id
	`
	rows, err := s.pool.Query(ctx, query, f.RelationID, f.Qualifier, f.TenantID)
	if err != nil {
		return nil, errors.Join(ErrQueryFailed, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (tenant.Relation, error) {
		var r tenant.Relation
		err := row.Scan(&r.ID, &r.RelationID, &r.Qualifier, &r.TenantID)
		return r, err
	})
	if err != nil {
		return nil, errors.Join(ErrQueryFailed, err)
	}
	return out, nil
}

func (s *Store) GetRelation(ctx context.Context, id int64) (tenant.Relation, error) {
	const query = `SELECT ` + relationColumns + ` FROM tenant_relations WHERE id = $1`
	return s.relationRow(s.pool.QueryRow(ctx, query, id))
}

func (s *Store) FindRelation(ctx context.Context, relationID, qualifier string) (tenant.Relation, error) {
	const query = `SELECT ` + relationColumns + ` FROM tenant_relations WHERE relation_id = $1 AND qualifier = $2`
	return s.relationRow(s.pool.QueryRow(ctx, query, relationID, qualifier))
}

func (s *Store) InsertRelation(ctx context.Context, r tenant.Relation) (tenant.Relation, error) {
	if err := r.Validate(); err != nil {
		return tenant.Relation{}, err
	}
	const query = `
		INSERT INTO tenant_relations (relation_id, qualifier, tenant_id)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	err := s.pool.QueryRow(ctx, query, r.RelationID, r.Qualifier, r.TenantID).Scan(&r.ID)
	if pg.IsDuplicateKeyError(err) {
		return tenant.Relation{}, tenant.ErrAlreadyExists
	}
	if pg.IsForeignKeyViolationError(err) {
		return tenant.Relation{}, errors.Join(tenant.ErrDanglingRelation, tenant.ErrNotFound)
	}
	if err != nil {
		return tenant.Relation{}, errors.Join(ErrQueryFailed, err)
	}
	return r, nil
}

func (s *Store) UpdateRelation(ctx context.Context, r tenant.Relation) error {
	if err := r.Validate(); err != nil {
		return err
	}
	const query = `UPDATE tenant_relations SET relation_id = $2, qualifier = $3, tenant_id = $4 WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, r.ID, r.RelationID, r.Qualifier, r.TenantID)
	if pg.IsDuplicateKeyError(err) {
		return tenant.ErrAlreadyExists
	}
	if pg.IsForeignKeyViolationError(err) {
		return errors.Join(tenant.ErrDanglingRelation, tenant.ErrNotFound)
	}
	if err != nil {
		return errors.Join(ErrQueryFailed, err)
	}
	if tag.RowsAffected() == 0 {
		return tenant.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteRelation(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tenant_relations WHERE id = $1`, id)
	if err != nil {
		return errors.Join(ErrQueryFailed, err)
	}
	if tag.RowsAffected() == 0 {
		return tenant.ErrNotFound
	}
	return nil
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]tenant.Record, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Join(ErrQueryFailed, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (tenant.Record, error) {
		return s.scanRecord(row)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) scanRecord(row pgx.Row) (tenant.Record, error) {
	var (
		r    tenant.Record
		kind string
	)
	err := row.Scan(
		&r.ID, &r.DisplayName, &kind, &r.Name, &r.Conn.URL, &r.Conn.Driver, &r.Conn.Username,
		&r.Conn.Password, &r.Conn.Extension, &r.Default, &r.Active, &r.Remark, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return tenant.Record{}, err
		}
		return tenant.Record{}, errors.Join(ErrQueryFailed, err)
	}
	if r.Kind, err = tenant.ParseKind(kind); err != nil {
		return tenant.Record{}, err
	}
	if r.Conn.Password, err = s.open(r.ID, r.Conn.Password); err != nil {
		return tenant.Record{}, err
	}
	return r, nil
}

func (s *Store) relationRow(row pgx.Row) (tenant.Relation, error) {
	var r tenant.Relation
	err := row.Scan(&r.ID, &r.RelationID, &r.Qualifier, &r.TenantID)
	if pg.IsNotFoundError(err) {
		return tenant.Relation{}, tenant.ErrNotFound
	}
	if err != nil {
		return tenant.Relation{}, errors.Join(ErrQueryFailed, err)
	}
	return r, nil
}

func (s *Store) seal(id, password string) (string, error) {
	if s.sealer == nil || password == "" {
		return password, nil
	}
	sealed, err := s.sealer.Seal(id, password)
	if err != nil {
		return "", errors.Join(ErrSealFailed, err)
	}
	return sealed, nil
}

func (s *Store) open(id, stored string) (string, error) {
	if s.sealer == nil || !secrets.IsSealed(stored) {
		return stored, nil
	}
	plain, err := s.sealer.Open(id, stored)
	if err != nil {
		return "", errors.Join(ErrUnsealFailed, err)
	}
	return plain, nil
}
