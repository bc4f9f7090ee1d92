package tenant

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	// MaxIDLength keeps tenant ids usable as pool names and DNS labels.
	MaxIDLength = 63
)

// idPattern allows alphanumeric start followed by alphanumerics, hyphens and underscores.
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// Kind describes how the connection source of a tenant is obtained.
type Kind string

const (
	// KindDirect builds a dedicated pool from the record's connection parameters.
	KindDirect Kind = "direct"
	// KindDirectory resolves connection parameters from a naming service by Record.Name.
	KindDirectory Kind = "directory"
	// KindPreRegistered borrows an already materialized connection registered under Record.Name.
	KindPreRegistered Kind = "preregistered"
)

// ParseKind accepts both the canonical names and the legacy short names
// ("jdbc", "jndi", "bean") still present in older tenant tables.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(KindDirect), "jdbc":
		return KindDirect, nil
	case string(KindDirectory), "jndi":
		return KindDirectory, nil
	case string(KindPreRegistered), "bean":
		return KindPreRegistered, nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidRecord, s)
	}
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindDirect, KindDirectory, KindPreRegistered:
		return true
	}
	return false
}

func (k Kind) String() string { return string(k) }

// ConnParams holds what a pool factory needs to open a tenant connection.
type ConnParams struct {
	URL       string `json:"url" yaml:"url"`
	Driver    string `json:"driver,omitempty" yaml:"driver"`
	Username  string `json:"username,omitempty" yaml:"username"`
	Password  string `json:"-" yaml:"password"`
	Extension string `json:"extension,omitempty" yaml:"extension"` // named vendor extension applied by the pool factory
}

// Record is the durable definition of a tenant.
type Record struct {
	ID          string     `json:"id" yaml:"id"`
	DisplayName string     `json:"display_name" yaml:"display_name"`
	Kind        Kind       `json:"kind" yaml:"kind"`
	Name        string     `json:"name,omitempty" yaml:"name"` // external name for directory and pre-registered kinds
	Conn        ConnParams `json:"conn" yaml:"conn"`
	Default     bool       `json:"default" yaml:"default"`
	Active      bool       `json:"active" yaml:"active"`
	Remark      string     `json:"remark,omitempty" yaml:"remark"`
	CreatedAt   time.Time  `json:"created_at" yaml:"-"`
	UpdatedAt   time.Time  `json:"updated_at" yaml:"-"`
}

// ValidateID checks the tenant identifier format.
func ValidateID(id string) error {
	if id == "" || len(id) > MaxIDLength || !idPattern.MatchString(id) {
		return fmt.Errorf("%w: invalid tenant id %q", ErrInvalidRecord, id)
	}
	return nil
}

// Validate checks that the record is complete for its kind.
func (r Record) Validate() error {
	if err := ValidateID(r.ID); err != nil {
		return err
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRecord, r.Kind)
	}
	switch r.Kind {
	case KindDirect:
		if strings.TrimSpace(r.Conn.URL) == "" {
			return fmt.Errorf("%w: tenant %s: connection url is required", ErrInvalidRecord, r.ID)
		}
	case KindDirectory, KindPreRegistered:
		if strings.TrimSpace(r.Name) == "" {
			return fmt.Errorf("%w: tenant %s: external name is required for kind %s", ErrInvalidRecord, r.ID, r.Kind)
		}
	}
	return nil
}

// ValidateDefaults enforces that at most one record is flagged as default.
// It returns the id of the default tenant, or an empty string if none is.
func ValidateDefaults(records []Record) (string, error) {
	var def string
	for _, r := range records {
		if !r.Default {
			continue
		}
		if def != "" && def != r.ID {
			return "", fmt.Errorf("%w: %s and %s", ErrMultipleDefaults, def, r.ID)
		}
		def = r.ID
	}
	return def, nil
}

// Relation maps an external relation key, optionally qualified, to a tenant.
// The pair (RelationID, Qualifier) is unique; an empty Qualifier is the
// fallback entry for the relation.
type Relation struct {
	ID         int64  `json:"id" yaml:"-"`
	RelationID string `json:"relation_id" yaml:"relation_id"`
	Qualifier  string `json:"qualifier" yaml:"qualifier"`
	TenantID   string `json:"tenant_id" yaml:"tenant_id"`
}

// Validate checks the relation fields.
func (r Relation) Validate() error {
	if strings.TrimSpace(r.RelationID) == "" {
		return fmt.Errorf("%w: relation id is required", ErrInvalidRelation)
	}
	if err := ValidateID(r.TenantID); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRelation, err)
	}
	return nil
}

// Key returns the unique (relation, qualifier) key.
func (r Relation) Key() RelationKey {
	return RelationKey{RelationID: r.RelationID, Qualifier: r.Qualifier}
}

// RelationKey identifies a relation mapping.
type RelationKey struct {
	RelationID string
	Qualifier  string
}
