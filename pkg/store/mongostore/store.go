package mongostore

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/tenantdb/pkg/secrets"
	"github.com/dmitrymomot/tenantdb/pkg/tenant"
)

const relationSequence = "tenant_relations"

type recordDoc struct {
	ID          string    `bson:"_id"`
	DisplayName string    `bson:"display_name"`
	Kind        string    `bson:"kind"`
	Name        string    `bson:"name"`
	URL         string    `bson:"url"`
	Driver      string    `bson:"driver"`
	Username    string    `bson:"username"`
	Password    string    `bson:"password"`
	Extension   string    `bson:"extension"`
	Default     bool      `bson:"is_default"`
	Active      bool      `bson:"active"`
	Remark      string    `bson:"remark"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

type relationDoc struct {
	ID         int64  `bson:"_id"`
	RelationID string `bson:"relation_id"`
	Qualifier  string `bson:"qualifier"`
	TenantID   string `bson:"tenant_id"`
}

// Store is a tenant.Store backed by MongoDB.
type Store struct {
	tenants   *mongo.Collection
	relations *mongo.Collection
	counters  *mongo.Collection
	sealer    *secrets.Sealer
}

// Option configures a Store.
type Option func(*Store)

// WithSealer encrypts connection passwords at rest.
func WithSealer(s *secrets.Sealer) Option {
	return func(st *Store) {
		st.sealer = s
	}
}

// New creates a store in db and ensures its indexes, including the unique
// (relation_id, qualifier) index.
func New(ctx context.Context, db *mongo.Database, prefix string, opts ...Option) (*Store, error) {
	s := &Store{
		tenants:   db.Collection(prefix + "tenants"),
		relations: db.Collection(prefix + "tenant_relations"),
		counters:  db.Collection(prefix + "counters"),
	}
	for _, opt := range opts {
		opt(s)
	}

	_, err := s.relations.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "relation_id", Value: 1}, {Key: "qualifier", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("relation_key"),
		},
		{
			Keys:    bson.D{{Key: "tenant_id", Value: 1}},
			Options: options.Index().SetName("tenant_id"),
		},
	})
	if err != nil {
		return nil, errors.Join(ErrIndexFailed, err)
	}
	if _, err := s.tenants.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "active", Value: 1}},
		Options: options.Index().SetName("active"),
	}); err != nil {
		return nil, errors.Join(ErrIndexFailed, err)
	}
	return s, nil
}

func (s *Store) ListActive(ctx context.Context) ([]tenant.Record, error) {
	return s.findRecords(ctx, bson.M{"active": true})
}

func (s *Store) Find(ctx context.Context, f tenant.Filter) ([]tenant.Record, error) {
	filter := bson.M{}
	if f.Kind != "" {
		filter["kind"] = string(f.Kind)
	}
	if f.Keyword != "" {
		filter["_id"] = bson.M{"$regex": regexp.QuoteMeta(f.Keyword), "$options": "i"}
	}
	return s.findRecords(ctx, filter)
}

func (s *Store) Get(ctx context.Context, id string) (tenant.Record, error) {
	var doc recordDoc
	err := s.tenants.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return tenant.Record{}, tenant.ErrNotFound
	}
	if err != nil {
		return tenant.Record{}, errors.Join(ErrQueryFailed, err)
	}
	return s.toRecord(doc)
}

func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.tenants.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, errors.Join(ErrQueryFailed, err)
	}
	return n > 0, nil
}

func (s *Store) Insert(ctx context.Context, r tenant.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	doc, err := s.toDoc(r)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	doc.CreatedAt, doc.UpdatedAt = now, now

	_, err = s.tenants.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
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
	doc, err := s.toDoc(r)
	if err != nil {
		return err
	}

	res, err := s.tenants.UpdateOne(ctx, bson.M{"_id": r.ID}, bson.M{"$set": bson.M{
		"display_name": doc.DisplayName,
		"kind":         doc.Kind,
		"name":         doc.Name,
		"url":          doc.URL,
		"driver":       doc.Driver,
		"username":     doc.Username,
		"password":     doc.Password,
		"extension":    doc.Extension,
		"is_default":   doc.Default,
		"active":       doc.Active,
		"remark":       doc.Remark,
		"updated_at":   time.Now().UTC(),
	}})
	if err != nil {
		return errors.Join(ErrQueryFailed, err)
	}
	if res.MatchedCount == 0 {
		return tenant.ErrNotFound
	}
	return nil
}

func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.tenants.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"active":     active,
		"updated_at": time.Now().UTC(),
	}})
	if err != nil {
		return errors.Join(ErrQueryFailed, err)
	}
	if res.MatchedCount == 0 {
		return tenant.ErrNotFound
	}
	return nil
}

// Delete removes the tenant and then every relation that references it.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.tenants.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Join(ErrQueryFailed, err)
	}
	if res.DeletedCount == 0 {
		return tenant.ErrNotFound
	}
	if _, err := s.relations.DeleteMany(ctx, bson.M{"tenant_id": id}); err != nil {
		return errors.Join(ErrQueryFailed, err)
	}
	return nil
}

// checkTenant stands in for the foreign key the relational schema declares.
func (s *Store) checkTenant(ctx context.Context, id string) error {
	ok, err := s.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Join(tenant.ErrDanglingRelation, tenant.ErrNotFound)
	}
	return nil
}

func (s *Store) ListRelations(ctx context.Context) ([]tenant.Relation, error) {
	return s.FindRelations(ctx, tenant.RelationFilter{})
}

func (s *Store) FindRelations(ctx context.Context, f tenant.RelationFilter) ([]tenant.Relation, error) {
	filter := bson.M{}
	if f.RelationID != "" {
		filter["relation_id"] = f.RelationID
	}
	if f.Qualifier != "" {
		filter["qualifier"] = f.Qualifier
	}
	if f.TenantID != "" {
		filter["tenant_id"] = f.TenantID
	}

	cur, err := s.relations.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, errors.Join(ErrQueryFailed, err)
	}
	var docs []relationDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Join(ErrQueryFailed, err)
	}

	out := make([]tenant.Relation, 0, len(docs))
	for _, d := range docs {
		out = append(out, toRelation(d))
	}
	return out, nil
}

func (s *Store) GetRelation(ctx context.Context, id int64) (tenant.Relation, error) {
	return s.findRelation(ctx, bson.M{"_id": id})
}

func (s *Store) FindRelation(ctx context.Context, relationID, qualifier string) (tenant.Relation, error) {
	return s.findRelation(ctx, bson.M{"relation_id": relationID, "qualifier": qualifier})
}

func (s *Store) InsertRelation(ctx context.Context, r tenant.Relation) (tenant.Relation, error) {
	if err := r.Validate(); err != nil {
		return tenant.Relation{}, err
	}
	if err := s.checkTenant(ctx, r.TenantID); err != nil {
		return tenant.Relation{}, err
	}
	id, err := s.nextID(ctx, relationSequence)
	if err != nil {
		return tenant.Relation{}, err
	}
	r.ID = id

	_, err = s.relations.InsertOne(ctx, relationDoc{
		ID:         r.ID,
		RelationID: r.RelationID,
		Qualifier:  r.Qualifier,
		TenantID:   r.TenantID,
	})
	if mongo.IsDuplicateKeyError(err) {
		return tenant.Relation{}, tenant.ErrAlreadyExists
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
	if err := s.checkTenant(ctx, r.TenantID); err != nil {
		return err
	}
	res, err := s.relations.UpdateOne(ctx, bson.M{"_id": r.ID}, bson.M{"$set": bson.M{
		"relation_id": r.RelationID,
		"qualifier":   r.Qualifier,
		"tenant_id":   r.TenantID,
	}})
	if mongo.IsDuplicateKeyError(err) {
		return tenant.ErrAlreadyExists
	}
	if err != nil {
		return errors.Join(ErrQueryFailed, err)
	}
	if res.MatchedCount == 0 {
		return tenant.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteRelation(ctx context.Context, id int64) error {
	res, err := s.relations.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Join(ErrQueryFailed, err)
	}
	if res.DeletedCount == 0 {
		return tenant.ErrNotFound
	}
	return nil
}

func (s *Store) findRecords(ctx context.Context, filter bson.M) ([]tenant.Record, error) {
	cur, err := s.tenants.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, errors.Join(ErrQueryFailed, err)
	}
	var docs []recordDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Join(ErrQueryFailed, err)
	}

	out := make([]tenant.Record, 0, len(docs))
	for _, d := range docs {
		r, err := s.toRecord(d)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) findRelation(ctx context.Context, filter bson.M) (tenant.Relation, error) {
	var doc relationDoc
	err := s.relations.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return tenant.Relation{}, tenant.ErrNotFound
	}
	if err != nil {
		return tenant.Relation{}, errors.Join(ErrQueryFailed, err)
	}
	return toRelation(doc), nil
}

// nextID increments and returns the named sequence.
func (s *Store) nextID(ctx context.Context, name string) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, errors.Join(ErrQueryFailed, err)
	}
	return counter.Seq, nil
}

func (s *Store) toDoc(r tenant.Record) (recordDoc, error) {
	password := r.Conn.Password
	if s.sealer != nil && password != "" {
		sealed, err := s.sealer.Seal(r.ID, password)
		if err != nil {
			return recordDoc{}, errors.Join(ErrSealFailed, err)
		}
		password = sealed
	}
	return recordDoc{
		ID:          r.ID,
		DisplayName: r.DisplayName,
		Kind:        string(r.Kind),
		Name:        r.Name,
		URL:         r.Conn.URL,
		Driver:      r.Conn.Driver,
		Username:    r.Conn.Username,
		Password:    password,
		Extension:   r.Conn.Extension,
		Default:     r.Default,
		Active:      r.Active,
		Remark:      r.Remark,
	}, nil
}

func (s *Store) toRecord(d recordDoc) (tenant.Record, error) {
	kind, err := tenant.ParseKind(d.Kind)
	if err != nil {
		return tenant.Record{}, err
	}
	password := d.Password
	if s.sealer != nil && secrets.IsSealed(password) {
		if password, err = s.sealer.Open(d.ID, password); err != nil {
			return tenant.Record{}, errors.Join(ErrUnsealFailed, err)
		}
	}
	return tenant.Record{
		ID:          d.ID,
		DisplayName: d.DisplayName,
		Kind:        kind,
		Name:        d.Name,
		Conn: tenant.ConnParams{
			URL:       d.URL,
			Driver:    d.Driver,
			Username:  d.Username,
			Password:  password,
			Extension: d.Extension,
		},
		Default:   d.Default,
		Active:    d.Active,
		Remark:    d.Remark,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}, nil
}

func toRelation(d relationDoc) tenant.Relation {
	return tenant.Relation{
		ID:         d.ID,
		RelationID: d.RelationID,
		Qualifier:  d.Qualifier,
		TenantID:   d.TenantID,
	}
}
