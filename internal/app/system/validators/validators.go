// internal/app/system/validators/validators.go
package validators

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/visadesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Collections lists every collection visadesk writes to.
var Collections = []string{
	"brands", "users", "addresses", "countries", "country_access",
	"service_types", "service_levels", "country_pairs", "processor_weights",
	"counters", "cases", "case_messages", "notifications", "loas", "content",
	"audit_logs", "rate_limits",
}

// EnsureAll creates missing collections and attaches JSON-Schema
// validators. Servers that reject collMod validators (some DocumentDB
// versions) are logged and skipped.
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string
	schemas := schemas()

	for _, coll := range Collections {
		if _, err := ensureCollection(ctx, db, coll); err != nil {
			problems = append(problems, coll+": "+err.Error())
			continue
		}
		schema, ok := schemas[coll]
		if !ok {
			continue
		}
		if err := setValidator(ctx, db, coll, schema); err != nil {
			if isNoSuchCommand(err) || isNotImplemented(err) {
				zap.L().Info("validator skipped (unsupported)", zap.String("collection", coll))
				continue
			}
			problems = append(problems, coll+": "+err.Error())
		}
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* ---------------------- collection helpers ---------------------- */

func collectionExists(ctx context.Context, db *mongo.Database, name string) (bool, error) {
	names, err := db.ListCollectionNames(ctx, bson.M{"name": name})
	if err != nil {
		return false, err
	}
	return len(names) > 0, nil
}

// ensureCollection reports created==true only when it made the collection.
func ensureCollection(ctx context.Context, db *mongo.Database, name string) (created bool, err error) {
	if exists, err := collectionExists(ctx, db, name); err == nil && exists {
		return false, nil
	}
	if err := db.CreateCollection(ctx, name); err != nil {
		if isNamespaceExistsErr(err) {
			return false, nil
		}
		zap.L().Warn("createCollection failed", zap.String("collection", name), zap.Error(err))
		return false, err
	}
	zap.L().Info("created collection", zap.String("collection", name))
	return true, nil
}

func setValidator(ctx context.Context, db *mongo.Database, name string, validator bson.M) error {
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	var out bson.M
	if err := db.RunCommand(ctx, cmd).Decode(&out); err != nil {
		return err
	}
	zap.L().Debug("validator ensured", zap.String("collection", name))
	return nil
}

/* ------------------------- error helpers ------------------------- */

func commandMatches(err error, code int32, phrases ...string) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == code {
		return true
	}
	s := strings.ToLower(err.Error())
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func isNamespaceExistsErr(err error) bool {
	return commandMatches(err, 48, "already exists", "namespace exists")
}

func isNoSuchCommand(err error) bool {
	return commandMatches(err, 59, "no such command")
}

func isNotImplemented(err error) bool {
	return commandMatches(err, 115, "not implemented", "not supported")
}

/* ------------------------- JSON-Schema docs ---------------------- */

func enum(vals ...string) bson.M {
	a := make(bson.A, len(vals))
	for i, v := range vals {
		a[i] = v
	}
	return bson.M{"enum": a}
}

var nonBlank = bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"}

func object(required []string, props bson.M) bson.M {
	req := make(bson.A, len(required))
	for i, r := range required {
		req[i] = r
	}
	return bson.M{"$jsonSchema": bson.M{
		"bsonType":   "object",
		"required":   req,
		"properties": props,
	}}
}

func schemas() map[string]bson.M {
	roles := make([]string, 0, len(models.Roles))
	for _, r := range models.Roles {
		roles = append(roles, r.Role)
	}

	return map[string]bson.M{
		"users": object(
			[]string{"full_name", "email_ci", "role", "status", "auth_method"},
			bson.M{
				"full_name":   nonBlank,
				"email_ci":    nonBlank,
				"role":        enum(roles...),
				"status":      enum(models.StatusActive, models.StatusDisabled),
				"auth_method": enum(models.AuthPassword, models.AuthSSO),
			}),
		"cases": object(
			[]string{"brand_id", "client_id", "status", "payment"},
			bson.M{
				"brand_id":  bson.M{"bsonType": "objectId"},
				"client_id": bson.M{"bsonType": "objectId"},
				"status":    enum(models.CaseStatuses...),
				"number":    bson.M{"bsonType": "string", "pattern": "^[A-Z]{2,5}-[0-9]{6,}$"},
			}),
		"country_pairs": object(
			[]string{"brand_id", "from_code", "to_code", "offerings"},
			bson.M{
				"from_code": bson.M{"bsonType": "string", "pattern": "^[A-Z]{2}$"},
				"to_code":   bson.M{"bsonType": "string", "pattern": "^[A-Z]{2}$"},
				"offerings": bson.M{"bsonType": "array"},
			}),
		"processor_weights": object(
			[]string{"brand_id", "processor_id", "weight", "assigned"},
			bson.M{
				"weight":   bson.M{"bsonType": bson.A{"int", "long"}, "minimum": 0, "maximum": 100},
				"assigned": bson.M{"bsonType": bson.A{"int", "long"}, "minimum": 0},
			}),
		"loas": object(
			[]string{"brand_id", "name", "storage_path", "content_type"},
			bson.M{
				"name":         nonBlank,
				"storage_path": nonBlank,
				"content_type": enum("application/pdf"),
			}),
		"content": object(
			[]string{"brand_id", "page", "data", "version"},
			bson.M{
				"page":    nonBlank,
				"data":    bson.M{"bsonType": "object"},
				"version": bson.M{"bsonType": bson.A{"int", "long"}, "minimum": 0},
			}),
	}
}
