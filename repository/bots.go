package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"greenhouse/db"
	"greenhouse/models"
)

type MongoBotRepository struct {
	docs docs[models.Bot]
}

func NewMongoBotRepository(database *mongo.Database) *MongoBotRepository {
	return &MongoBotRepository{docs: docs[models.Bot]{
		coll: database.Collection(db.BotsCollection),
		indexes: []indexField{
			{index: db.IndexNameKey, field: "name"},
			{index: db.IndexBotID, field: "botId"},
		},
	}}
}

func (r *MongoBotRepository) Create(ctx context.Context, b *models.Bot) error {
	return r.docs.insert(ctx, b)
}

func (r *MongoBotRepository) Update(ctx context.Context, b *models.Bot) error {
	return r.docs.replace(ctx, b.ID, b)
}

func (r *MongoBotRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	return r.docs.delete(ctx, id)
}

func (r *MongoBotRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Bot, error) {
	return r.docs.findByID(ctx, id)
}

func (r *MongoBotRepository) Search(ctx context.Context, f SearchFilter) ([]models.Bot, int64, error) {
	f.ComponentTypes = nil
	return r.docs.search(ctx, f)
}

func (r *MongoBotRepository) UpdateRating(ctx context.Context, id primitive.ObjectID, rating models.Rating) error {
	return r.docs.set(ctx, id, ratingFields(rating))
}

func (r *MongoBotRepository) SetSubscriptionsCount(ctx context.Context, id primitive.ObjectID, n int64) error {
	return r.docs.set(ctx, id, bson.M{"subscriptionsCount": n})
}

func (r *MongoBotRepository) CountReferencing(ctx context.Context, componentID primitive.ObjectID) (int64, error) {
	n, err := r.docs.coll.CountDocuments(ctx, bson.M{"$or": bson.A{
		bson.M{"botEngine.component": componentID},
		bson.M{"services.component": componentID},
		bson.M{"channels.component": componentID},
	}})
	if err != nil {
		return 0, fmt.Errorf("count bots referencing %s: %w", componentID.Hex(), err)
	}
	return n, nil
}
