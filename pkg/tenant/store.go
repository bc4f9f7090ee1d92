package tenant

import (
	"context"
	"strings"
)

// Filter narrows tenant listings. Empty fields match everything.
type Filter struct {
	Kind    Kind
	Keyword string // substring of the tenant id
}

// RelationFilter narrows relation listings. Empty fields match everything.
type RelationFilter struct {
	RelationID string
	Qualifier  string
	TenantID   string
}

// Store is the durable source of truth for tenant and relation records.
// Implementations return ErrNotFound for missing rows and ErrAlreadyExists
// for unique key violations.
type Store interface {
	ListActive(ctx context.Context) ([]Record, error)
	Find(ctx context.Context, f Filter) ([]Record, error)
	Get(ctx context.Context, id string) (Record, error)
	Exists(ctx context.Context, id string) (bool, error)
	Insert(ctx context.Context, r Record) error
	Update(ctx context.Context, r Record) error
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error

	ListRelations(ctx context.Context) ([]Relation, error)
	FindRelations(ctx context.Context, f RelationFilter) ([]Relation, error)
	GetRelation(ctx context.Context, id int64) (Relation, error)
	FindRelation(ctx context.Context, relationID, qualifier string) (Relation, error)
	InsertRelation(ctx context.Context, r Relation) (Relation, error)
	UpdateRelation(ctx context.Context, r Relation) error
	DeleteRelation(ctx context.Context, id int64) error
}

// MatchRecord reports whether r satisfies f.
func (f Filter) MatchRecord(r Record) bool {
	if f.Kind != "" && r.Kind != f.Kind {
		return false
	}
	if f.Keyword != "" && !containsFold(r.ID, f.Keyword) {
		return false
	}
	return true
}

// MatchRelation reports whether r satisfies f.
func (f RelationFilter) MatchRelation(r Relation) bool {
	if f.RelationID != "" && r.RelationID != f.RelationID {
		return false
	}
	if f.Qualifier != "" && r.Qualifier != f.Qualifier {
		return false
	}
	if f.TenantID != "" && r.TenantID != f.TenantID {
		return false
	}
	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
