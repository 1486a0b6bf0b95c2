package store

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ParseID parses a native ObjectID from its hex form. Routes over native-id
// collections (analyses, funding projects, document sections) must reject a
// malformed id with a 400 before any store access; this is that check.
func ParseID(id string) (primitive.ObjectID, bool) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, false
	}
	return oid, true
}

// ValidID reports whether id is a well-formed native identifier.
func ValidID(id string) bool {
	_, ok := ParseID(id)
	return ok
}

// idFilter builds the lookup filter for string-id collections: a value that
// parses as a native id matches on _id, anything else matches the id field.
func idFilter(id string) bson.M {
	if oid, ok := ParseID(id); ok {
		return bson.M{"_id": oid}
	}
	return bson.M{"id": id}
}
