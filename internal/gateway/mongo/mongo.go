// Package mongo implements the gateway on MongoDB, one collection per table.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"cassa/internal/core"
	"cassa/internal/gateway"
)

// Gateway stores each table as a collection whose _id is the row id.
type Gateway struct {
	client *mongo.Client
	db     *mongo.Database
}

// Open connects to uri, selects database name and creates the indexes
// backing each table's unique keys.
func Open(ctx context.Context, uri, name string) (*Gateway, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	g := &Gateway{client: client, db: client.Database(name)}
	if err := g.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return g, nil
}

func (g *Gateway) ensureIndexes(ctx context.Context) error {
	for _, t := range gateway.Tables() {
		var models []mongo.IndexModel
		if _, ok := t.Column(gateway.ColGroupID); ok && t.Name != gateway.TableGroups {
			models = append(models, mongo.IndexModel{Keys: bson.D{{Key: gateway.ColGroupID, Value: 1}}})
		}
		for _, key := range t.Unique {
			keys := bson.D{}
			for _, c := range key {
				keys = append(keys, bson.E{Key: c, Value: 1})
			}
			models = append(models, mongo.IndexModel{Keys: keys, Options: options.Index().SetUnique(true)})
		}
		if len(models) == 0 {
			continue
		}
		if _, err := g.db.Collection(t.Name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", t.Name, err)
		}
	}
	return nil
}

func (g *Gateway) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.client.Disconnect(ctx)
}

// Ping checks the connection; used by readiness probes.
func (g *Gateway) Ping(ctx context.Context) error { return g.client.Ping(ctx, nil) }

var mongoOps = map[gateway.Op]string{
	gateway.OpGt:  "$gt",
	gateway.OpGte: "$gte",
	gateway.OpLt:  "$lt",
	gateway.OpLte: "$lte",
}

func (g *Gateway) Select(ctx context.Context, q gateway.Query) ([]gateway.Row, error) {
	t, rq, err := q.Resolve()
	if err != nil {
		return nil, err
	}

	filter := bson.D{}
	for _, f := range rq.Filters {
		v := toBSON(f.Value)
		if f.Op == gateway.OpEq {
			filter = append(filter, bson.E{Key: f.Column, Value: v})
			continue
		}
		filter = append(filter, bson.E{Key: f.Column, Value: bson.D{{Key: mongoOps[f.Op], Value: v}}})
	}
	sort := bson.D{}
	for _, o := range rq.Orders {
		dir := 1
		if o.Desc {
			dir = -1
		}
		sort = append(sort, bson.E{Key: o.Column, Value: dir})
	}

	opts := options.Find()
	if len(sort) > 0 {
		opts.SetSort(sort)
	}
	cur, err := g.db.Collection(t.Name).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", t.Name, err)
	}
	defer cur.Close(ctx)

	var out []gateway.Row
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("select %s: %w", t.Name, err)
		}
		r, err := fromDocument(t, doc)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("select %s: %w", t.Name, err)
	}
	return out, nil
}

// Insert writes the batch with InsertMany. MongoDB has no multi-document
// atomicity outside replica-set transactions, so a failed batch is undone
// by deleting whatever made it in.
func (g *Gateway) Insert(ctx context.Context, table string, rows []gateway.Row) ([]gateway.Row, error) {
	t, err := gateway.Lookup(table)
	if err != nil {
		return nil, err
	}
	docs := make([]any, 0, len(rows))
	ids := make([]string, 0, len(rows))
	out := make([]gateway.Row, 0, len(rows))
	for _, r := range rows {
		n, err := t.Normalize(r)
		if err != nil {
			return nil, err
		}
		if n.ID() == "" {
			return nil, fmt.Errorf("insert %s: missing id", table)
		}
		docs = append(docs, toDocument(t, n))
		ids = append(ids, n.ID())
		out = append(out, withColumns(t, n))
	}
	if len(docs) == 0 {
		return out, nil
	}

	coll := g.db.Collection(table)
	if _, err := coll.InsertMany(ctx, docs); err != nil {
		if _, derr := coll.DeleteMany(context.WithoutCancel(ctx), bson.M{"_id": bson.M{"$in": ids}}); derr != nil {
			err = errors.Join(err, fmt.Errorf("undo partial insert: %w", derr))
		}
		return nil, fmt.Errorf("insert %s: %w", table, translate(err))
	}
	return out, nil
}

func (g *Gateway) Update(ctx context.Context, table, id string, fields gateway.Row, conds ...gateway.Filter) (gateway.Row, error) {
	t, err := gateway.Lookup(table)
	if err != nil {
		return nil, err
	}
	n, err := t.Normalize(fields)
	if err != nil {
		return nil, err
	}

	filter, err := byID(table, id, conds)
	if err != nil {
		return nil, err
	}

	set := bson.M{}
	for _, c := range t.UpdatableColumns(n) {
		set[c] = toBSON(n[c])
	}
	coll := g.db.Collection(table)
	var res *mongo.SingleResult
	if len(set) == 0 {
		res = coll.FindOne(ctx, filter)
	} else {
		res = coll.FindOneAndUpdate(ctx, filter, bson.M{"$set": set},
			options.FindOneAndUpdate().SetReturnDocument(options.After))
	}
	var doc bson.M
	if err := res.Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("update %s %s: %w", table, id, gateway.ErrNotFound)
		}
		return nil, fmt.Errorf("update %s %s: %w", table, id, translate(err))
	}
	return fromDocument(t, doc)
}

func (g *Gateway) Delete(ctx context.Context, table, id string, conds ...gateway.Filter) error {
	if _, err := gateway.Lookup(table); err != nil {
		return err
	}
	filter, err := byID(table, id, conds)
	if err != nil {
		return err
	}
	if _, err := g.db.Collection(table).DeleteOne(ctx, filter); err != nil {
		return fmt.Errorf("delete %s %s: %w", table, id, err)
	}
	return nil
}

// byID is the single-document filter for Update and Delete.
func byID(table, id string, conds []gateway.Filter) (bson.M, error) {
	where, err := gateway.ResolveConds(table, conds)
	if err != nil {
		return nil, err
	}
	filter := bson.M{"_id": id}
	for _, f := range where {
		filter[f.Column] = toBSON(f.Value)
	}
	return filter, nil
}

func (g *Gateway) Upsert(ctx context.Context, table string, row gateway.Row, conflict []string) (gateway.Row, error) {
	t, n, err := gateway.CheckUpsert(table, row, conflict)
	if err != nil {
		return nil, err
	}

	filter := bson.D{}
	skip := make(map[string]bool, len(conflict))
	for _, c := range conflict {
		filter = append(filter, bson.E{Key: c, Value: toBSON(n[c])})
		skip[c] = true
	}
	set := bson.M{}
	for _, c := range t.UpdatableColumns(n, conflict...) {
		set[c] = toBSON(n[c])
	}
	onInsert := bson.M{}
	for _, c := range t.Columns {
		v, ok := n[c.Name]
		if !ok || skip[c.Name] {
			continue
		}
		if _, updated := set[c.Name]; updated {
			continue
		}
		onInsert[c.Name] = toBSON(v)
	}
	onInsert["_id"] = n.ID()

	update := bson.M{"$setOnInsert": onInsert}
	if len(set) > 0 {
		update["$set"] = set
	}
	var doc bson.M
	err = g.db.Collection(table).FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)).Decode(&doc)
	if err != nil {
		return nil, fmt.Errorf("upsert %s: %w", table, translate(err))
	}
	return fromDocument(t, doc)
}

func toDocument(t *gateway.Table, r gateway.Row) bson.M {
	doc := bson.M{"_id": r.ID()}
	for _, c := range t.Columns {
		if v, ok := r[c.Name]; ok {
			doc[c.Name] = toBSON(v)
		}
	}
	return doc
}

// toBSON stores decimals and dates as strings and timestamps as BSON dates.
func toBSON(v any) any {
	switch x := v.(type) {
	case decimal.Decimal:
		return x.String()
	case core.Date:
		return x.String()
	case time.Time:
		return primitive.NewDateTimeFromTime(x)
	}
	return v
}

func fromDocument(t *gateway.Table, doc bson.M) (gateway.Row, error) {
	raw := make(gateway.Row, len(t.Columns))
	for _, c := range t.Columns {
		v := doc[c.Name]
		switch x := v.(type) {
		case primitive.DateTime:
			v = x.Time()
		case primitive.Decimal128:
			v = x.String()
		}
		raw[c.Name] = v
	}
	if raw[gateway.ColID] == nil {
		raw[gateway.ColID] = doc["_id"]
	}
	return t.Normalize(raw)
}

// withColumns fills absent nullable columns so inserted rows look like selected ones.
func withColumns(t *gateway.Table, r gateway.Row) gateway.Row {
	out := r.Clone()
	for _, c := range t.Columns {
		if _, ok := out[c.Name]; !ok && c.Nullable {
			out[c.Name] = nil
		}
	}
	return out
}

func translate(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", gateway.ErrConflict, err)
	}
	return err
}
