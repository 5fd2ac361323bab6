package repository

import (
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// SearchFilter selects and orders a page of bots or components. Zero values
// do not filter.
type SearchFilter struct {
	Owner          primitive.ObjectID
	Search         string
	Status         string
	Category       string
	ComponentTypes []string
	SortBy         string
	SortType       string
	Page           int
	PageSize       int
}

// Normalize clamps paging and fills in the default ordering.
func (f SearchFilter) Normalize() SearchFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	if f.SortBy != "name" {
		f.SortBy = "updatedAt"
	}
	if f.SortType != "asc" {
		f.SortType = "desc"
	}
	return f
}

func (f SearchFilter) query() bson.M {
	q := bson.M{}
	if !f.Owner.IsZero() {
		q["user"] = f.Owner
	}
	if f.Search != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(f.Search), Options: "i"}
		q["$or"] = bson.A{
			bson.M{"name": re},
			bson.M{"description": re},
		}
	}
	if f.Status != "" {
		q["status"] = f.Status
	}
	if f.Category != "" {
		q["category"] = f.Category
	}
	switch len(f.ComponentTypes) {
	case 0:
	case 1:
		q["componentType"] = f.ComponentTypes[0]
	default:
		q["componentType"] = bson.M{"$in": f.ComponentTypes}
	}
	return q
}

func (f SearchFilter) findOptions() *options.FindOptions {
	dir := -1
	if f.SortType == "asc" {
		dir = 1
	}
	return options.Find().
		SetSort(bson.D{{Key: f.SortBy, Value: dir}, {Key: "_id", Value: dir}}).
		SetSkip(int64((f.Page - 1) * f.PageSize)).
		SetLimit(int64(f.PageSize))
}
