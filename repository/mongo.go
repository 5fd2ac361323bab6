package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"greenhouse/models"
)

// indexField maps a unique index to the document field it guards.
type indexField struct {
	index string
	field string
}

// uniqueViolation turns a duplicate key error into a DuplicateKeyError and
// passes every other error through.
func uniqueViolation(err error, indexes ...indexField) error {
	if err == nil || !mongo.IsDuplicateKeyError(err) {
		return err
	}
	msg := err.Error()
	for _, ix := range indexes {
		if strings.Contains(msg, "index: "+ix.index+" ") {
			return &DuplicateKeyError{Field: ix.field, Err: err}
		}
	}
	return &DuplicateKeyError{Err: err}
}

// docs holds the operations shared by the bot and component collections.
type docs[T any] struct {
	coll    *mongo.Collection
	indexes []indexField
}

func (d docs[T]) insert(ctx context.Context, doc *T) error {
	if _, err := d.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert into %s: %w", d.coll.Name(), uniqueViolation(err, d.indexes...))
	}
	return nil
}

func (d docs[T]) replace(ctx context.Context, id primitive.ObjectID, doc *T) error {
	res, err := d.coll.ReplaceOne(ctx, bson.M{"_id": id}, doc)
	if err != nil {
		return fmt.Errorf("replace in %s: %w", d.coll.Name(), uniqueViolation(err, d.indexes...))
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (d docs[T]) delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := d.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete from %s: %w", d.coll.Name(), err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (d docs[T]) findByID(ctx context.Context, id primitive.ObjectID) (*T, error) {
	return findOne[T](ctx, d.coll, bson.M{"_id": id})
}

func (d docs[T]) findByIDs(ctx context.Context, ids []primitive.ObjectID) ([]T, error) {
	if len(ids) == 0 {
		return []T{}, nil
	}
	return findAll[T](ctx, d.coll, bson.M{"_id": bson.M{"$in": ids}})
}

func (d docs[T]) search(ctx context.Context, f SearchFilter) ([]T, int64, error) {
	f = f.Normalize()
	q := f.query()
	total, err := d.coll.CountDocuments(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", d.coll.Name(), err)
	}
	out, err := findAll[T](ctx, d.coll, q, f.findOptions())
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (d docs[T]) set(ctx context.Context, id primitive.ObjectID, fields bson.M) error {
	res, err := d.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("update %s: %w", d.coll.Name(), err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func ratingFields(r models.Rating) bson.M {
	return bson.M{"averageRating": r.Average, "reviewsCount": r.Count}
}

func findOne[T any](ctx context.Context, coll *mongo.Collection, filter any) (*T, error) {
	var out T
	if err := coll.FindOne(ctx, filter).Decode(&out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find in %s: %w", coll.Name(), err)
	}
	return &out, nil
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter any, opts ...*options.FindOptions) ([]T, error) {
	cur, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", coll.Name(), err)
	}
	defer cur.Close(ctx)

	out := []T{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", coll.Name(), err)
	}
	return out, nil
}
