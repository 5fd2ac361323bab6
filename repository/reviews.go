package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"greenhouse/db"
	"greenhouse/models"
)

type MongoReviewRepository struct {
	coll *mongo.Collection
}

func NewMongoReviewRepository(database *mongo.Database) *MongoReviewRepository {
	return &MongoReviewRepository{coll: database.Collection(db.ReviewsCollection)}
}

func reviewTarget(t models.InstanceType, instanceID primitive.ObjectID) bson.M {
	return bson.M{"instanceType": t, "instanceId": instanceID}
}

func reviewKey(t models.InstanceType, instanceID, userID primitive.ObjectID) bson.M {
	return bson.M{"instanceType": t, "instanceId": instanceID, "user": userID}
}

func (r *MongoReviewRepository) Upsert(ctx context.Context, rv *models.Review) error {
	update := bson.M{
		"$set": bson.M{
			"rating":    rv.Rating,
			"comments":  rv.Comments,
			"updatedAt": rv.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"_id":       rv.ID,
			"createdAt": rv.CreatedAt,
		},
	}
	key := reviewKey(rv.InstanceType, rv.InstanceID, rv.UserID)
	_, err := r.coll.UpdateOne(ctx, key, update, options.Update().SetUpsert(true))
	if err != nil && mongo.IsDuplicateKeyError(err) {
		_, err = r.coll.UpdateOne(ctx, key, bson.M{"$set": update["$set"]})
	}
	if err != nil {
		return fmt.Errorf("upsert review: %w", err)
	}
	return nil
}

func (r *MongoReviewRepository) Find(ctx context.Context, t models.InstanceType, instanceID, userID primitive.ObjectID) (*models.Review, error) {
	return findOne[models.Review](ctx, r.coll, reviewKey(t, instanceID, userID))
}

func (r *MongoReviewRepository) Delete(ctx context.Context, t models.InstanceType, instanceID, userID primitive.ObjectID) error {
	res, err := r.coll.DeleteOne(ctx, reviewKey(t, instanceID, userID))
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Aggregate computes the review count and mean rating of a target in the
// database. A target without reviews rates 0/0.
func (r *MongoReviewRepository) Aggregate(ctx context.Context, t models.InstanceType, instanceID primitive.ObjectID) (models.Rating, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: reviewTarget(t, instanceID)}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "count", Value: bson.M{"$sum": 1}},
			{Key: "average", Value: bson.M{"$avg": "$rating"}},
		}}},
	}
	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return models.Rating{}, fmt.Errorf("aggregate reviews: %w", err)
	}
	defer cur.Close(ctx)

	var rows []models.Rating
	if err := cur.All(ctx, &rows); err != nil {
		return models.Rating{}, fmt.Errorf("decode review aggregate: %w", err)
	}
	if len(rows) == 0 {
		return models.Rating{}, nil
	}
	return rows[0], nil
}

func (r *MongoReviewRepository) List(ctx context.Context, t models.InstanceType, instanceID primitive.ObjectID, page, pageSize int) ([]models.Review, int64, error) {
	f := SearchFilter{Page: page, PageSize: pageSize}.Normalize()
	q := reviewTarget(t, instanceID)
	total, err := r.coll.CountDocuments(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("count reviews: %w", err)
	}
	out, err := findAll[models.Review](ctx, r.coll, q, f.findOptions())
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
