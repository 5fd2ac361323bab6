package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"greenhouse/db"
	"greenhouse/models"
)

type MongoComponentRepository struct {
	docs docs[models.Component]
}

func NewMongoComponentRepository(database *mongo.Database) *MongoComponentRepository {
	return &MongoComponentRepository{docs: docs[models.Component]{
		coll: database.Collection(db.ComponentsCollection),
		indexes: []indexField{
			{index: db.IndexNameKey, field: "name"},
			{index: db.IndexKey, field: "key"},
		},
	}}
}

func (r *MongoComponentRepository) Create(ctx context.Context, c *models.Component) error {
	return r.docs.insert(ctx, c)
}

func (r *MongoComponentRepository) Update(ctx context.Context, c *models.Component) error {
	return r.docs.replace(ctx, c.ID, c)
}

func (r *MongoComponentRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	return r.docs.delete(ctx, id)
}

func (r *MongoComponentRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Component, error) {
	return r.docs.findByID(ctx, id)
}

func (r *MongoComponentRepository) FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Component, error) {
	return r.docs.findByIDs(ctx, ids)
}

func (r *MongoComponentRepository) Search(ctx context.Context, f SearchFilter) ([]models.Component, int64, error) {
	return r.docs.search(ctx, f)
}

func (r *MongoComponentRepository) UpdateRating(ctx context.Context, id primitive.ObjectID, rating models.Rating) error {
	return r.docs.set(ctx, id, ratingFields(rating))
}
