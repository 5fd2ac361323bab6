package utils

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"greenhouse/apperr"
	"greenhouse/repository"
)

// maxBodyBytes caps request bodies decoded by DecodeJSON.
const maxBodyBytes = 1 << 20

// ObjectIDParam parses the named path parameter as an ObjectID.
func ObjectIDParam(ps httprouter.Params, name string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(ps.ByName(name))
	if err != nil {
		return primitive.NilObjectID, apperr.Field(name, "validation.invalid_id")
	}
	return id, nil
}

// ObjectIDList parses a comma separated list of ids, skipping blanks.
func ObjectIDList(raw string) ([]primitive.ObjectID, error) {
	var ids []primitive.ObjectID
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := primitive.ObjectIDFromHex(part)
		if err != nil {
			return nil, apperr.Field("ids", "validation.invalid_id")
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// DecodeJSON reads the request body into v.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Field("body", "validation.malformed_body")
	}
	return nil
}

// ParsePage reads page and pageSize from the query string. Out of range
// values are clamped by the repositories.
func ParsePage(r *http.Request) (page, pageSize int) {
	q := r.URL.Query()
	page, _ = strconv.Atoi(q.Get("page"))
	pageSize, _ = strconv.Atoi(q.Get("pageSize"))
	return page, pageSize
}

// ParseSearchFilter reads the marketplace search parameters from the query
// string.
func ParseSearchFilter(r *http.Request) repository.SearchFilter {
	q := r.URL.Query()
	page, pageSize := ParsePage(r)
	f := repository.SearchFilter{
		Search:   strings.TrimSpace(q.Get("search")),
		Status:   q.Get("status"),
		Category: q.Get("category"),
		SortBy:   q.Get("sortBy"),
		SortType: q.Get("sortType"),
		Page:     page,
		PageSize: pageSize,
	}
	if types := q.Get("componentTypes"); types != "" {
		for _, t := range strings.Split(types, ",") {
			if t = strings.TrimSpace(t); t != "" {
				f.ComponentTypes = append(f.ComponentTypes, t)
			}
		}
	}
	return f
}
