package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// User is the subset of an account this service reads. Accounts are owned
// by the user directory upstream.
type User struct {
	ID            primitive.ObjectID `json:"_id" bson:"_id"`
	Username      string             `json:"username" bson:"username"`
	AccountStatus string             `json:"accountStatus" bson:"accountStatus"`
}

// UserRef is the owner summary embedded in API responses.
type UserRef struct {
	ID       primitive.ObjectID `json:"_id"`
	Username string             `json:"username"`
}

func (u *User) Ref() *UserRef {
	return &UserRef{ID: u.ID, Username: u.Username}
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID       primitive.ObjectID
	Username string
}
