package mongoadapter

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/tenantkit/tenantkit/pkg/query"
)

// handle wraps a mongo client scoped to one database.
type handle struct {
	client *mongo.Client
	db     *mongo.Database
}

func (h *handle) Insert(ctx context.Context, collection string, record map[string]any) (string, error) {
	doc := make(bson.M, len(record)+1)
	for k, v := range record {
		doc[k] = v
	}
	id, ok := doc["id"].(string)
	if !ok || id == "" {
		id = uuid.NewString()
		doc["id"] = id
	}
	if _, err := h.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("insert into %s: %w", collection, err)
	}
	return id, nil
}

func (h *handle) Find(ctx context.Context, collection string, filter query.Filter) ([]map[string]any, error) {
	f, err := ToBSON(filter)
	if err != nil {
		return nil, err
	}
	cur, err := h.db.Collection(collection).Find(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", collection, err)
	}
	defer cur.Close(ctx)
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode %s results: %w", collection, err)
	}
	out := make([]map[string]any, len(docs))
	for i, d := range docs {
		delete(d, "_id")
		out[i] = map[string]any(d)
	}
	return out, nil
}

func (h *handle) Update(ctx context.Context, collection string, filter query.Filter, changes map[string]any) (int64, error) {
	f, err := ToBSON(filter)
	if err != nil {
		return 0, err
	}
	res, err := h.db.Collection(collection).UpdateMany(ctx, f, bson.M{"$set": bson.M(changes)})
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", collection, err)
	}
	return res.MatchedCount, nil
}

func (h *handle) Delete(ctx context.Context, collection string, filter query.Filter) (int64, error) {
	f, err := ToBSON(filter)
	if err != nil {
		return 0, err
	}
	res, err := h.db.Collection(collection).DeleteMany(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", collection, err)
	}
	return res.DeletedCount, nil
}

func (h *handle) Count(ctx context.Context, collection string, filter query.Filter) (int64, error) {
	f, err := ToBSON(filter)
	if err != nil {
		return 0, err
	}
	n, err := h.db.Collection(collection).CountDocuments(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

// Exec runs a named database command (e.g. "ping"). Arguments beyond the
// command name are not supported on this family.
func (h *handle) Exec(ctx context.Context, command string, args ...any) error {
	if len(args) > 0 {
		return fmt.Errorf("exec %q: document-store commands take no positional arguments", command)
	}
	if err := h.db.RunCommand(ctx, bson.D{{Key: command, Value: 1}}).Err(); err != nil {
		return fmt.Errorf("run command %q: %w", command, err)
	}
	return nil
}

func (h *handle) Close(ctx context.Context) error {
	return h.client.Disconnect(ctx)
}

// ToBSON translates a filter tree into a driver filter document. The
// operator set is closed: anything but $and/$or is rejected so an
// unrecognized construct can never widen a scoped query.
func ToBSON(f query.Filter) (bson.M, error) {
	if err := query.Validate(f); err != nil {
		return nil, err
	}
	out := bson.M{}
	for k, v := range f {
		switch k {
		case query.OpAnd, query.OpOr:
			sub := v.([]query.Filter)
			arr := make(bson.A, 0, len(sub))
			for _, s := range sub {
				b, err := ToBSON(s)
				if err != nil {
					return nil, err
				}
				arr = append(arr, b)
			}
			out[k] = arr
		default:
			out[k] = v
		}
	}
	return out, nil
}
