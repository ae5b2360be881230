// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// collectionIndexes pairs a collection with the indexes it should have.
type collectionIndexes struct {
	name   string
	models []mongo.IndexModel
}

/*
EnsureAll is called at startup and by the test harness. Every collection
is reconciled even when an earlier one fails, so one run reports all
problems at once.
*/
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string
	for _, ci := range all() {
		if err := ensureIndexSet(ctx, db.Collection(ci.name), ci.models); err != nil {
			problems = append(problems, ci.name+": "+err.Error())
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Reconcile desired indexes for one collection                               */
/* -------------------------------------------------------------------------- */

type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func isUnique(b *bool) bool { return b != nil && *b }

func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 11000 {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "E11000") || strings.Contains(strings.ToLower(s), "duplicate key")
}

func listExisting(ctx context.Context, coll *mongo.Collection) map[string]existingIndex {
	existing := map[string]existingIndex{}
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		// A missing collection has no indexes yet.
		return existing
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			zap.L().Warn("failed to decode existing index",
				zap.String("collection", coll.Name()),
				zap.Error(err))
			continue
		}
		existing[keySig(idx.Key)] = idx
	}
	return existing
}

// ensureIndexSet creates missing indexes and recreates ones whose key
// pattern matches but whose uniqueness differs. Indexes not listed are
// left alone.
func ensureIndexSet(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) error {
	var errs []string
	existing := listExisting(ctx, coll)

	for _, m := range models {
		var name string
		var unique *bool
		if m.Options != nil {
			if m.Options.Name != nil {
				name = *m.Options.Name
			}
			unique = m.Options.Unique
		}
		sig := keySig(m.Keys.(bson.D))
		start := time.Now()
		log := zap.L().With(
			zap.String("collection", coll.Name()),
			zap.String("name", name),
			zap.String("keys", sig),
			zap.Bool("unique", isUnique(unique)))

		if ex, ok := existing[sig]; ok {
			if isUnique(ex.Unique) == isUnique(unique) {
				log.Debug("index present", zap.String("existing_name", ex.Name))
				continue
			}
			if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
				log.Warn("drop existing index failed", zap.Error(err))
				errs = append(errs, fmt.Sprintf("%s: drop failed: %v", name, err))
				continue
			}
		}

		if _, err := coll.Indexes().CreateOne(ctx, m); err != nil {
			log.Warn("index ensure failed", zap.Error(err))
			if isDuplicateKeyErr(err) && isUnique(unique) {
				errs = append(errs, fmt.Sprintf("%s: cannot create unique index (duplicates present)", name))
			} else {
				errs = append(errs, fmt.Sprintf("%s: %v", name, err))
			}
			continue
		}
		log.Info("index ensured", zap.Duration("took", time.Since(start)))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Collection-specific index sets                                              */
/* -------------------------------------------------------------------------- */

func idx(name string, keys ...string) mongo.IndexModel {
	return mongo.IndexModel{Keys: keyDoc(keys), Options: options.Index().SetName(name)}
}

func uniq(name string, keys ...string) mongo.IndexModel {
	return mongo.IndexModel{Keys: keyDoc(keys), Options: options.Index().SetName(name).SetUnique(true)}
}

// keyDoc turns "field" / "-field" into ascending / descending keys.
func keyDoc(keys []string) bson.D {
	d := make(bson.D, 0, len(keys))
	for _, k := range keys {
		if strings.HasPrefix(k, "-") {
			d = append(d, bson.E{Key: k[1:], Value: -1})
		} else {
			d = append(d, bson.E{Key: k, Value: 1})
		}
	}
	return d
}

func all() []collectionIndexes {
	return []collectionIndexes{
		{"brands", []mongo.IndexModel{
			uniq("uniq_brands_slug", "slug"),
			{
				// Domains are unique across brands; brands without
				// domains are skipped by the partial filter.
				Keys: bson.D{{Key: "domains", Value: 1}},
				Options: options.Index().SetName("uniq_brands_domains").SetUnique(true).
					SetPartialFilterExpression(bson.M{"domains.0": bson.M{"$exists": true}}),
			},
			idx("idx_brands_name_ci", "name_ci", "_id"),
		}},
		{"users", []mongo.IndexModel{
			uniq("uniq_users_brand_email", "brand_id", "email_ci"),
			{
				Keys: bson.D{{Key: "sso_provider", Value: 1}, {Key: "sso_subject", Value: 1}},
				Options: options.Index().SetName("idx_users_sso").
					SetPartialFilterExpression(bson.M{"sso_subject": bson.M{"$type": "string"}}),
			},
			idx("idx_users_brand_role_status_name", "brand_id", "role", "status", "full_name_ci", "_id"),
		}},
		{"addresses", []mongo.IndexModel{
			idx("idx_addresses_user", "user_id", "-updated_at"),
		}},
		{"countries", []mongo.IndexModel{
			uniq("uniq_countries_code", "code"),
			idx("idx_countries_name_ci", "name_ci"),
		}},
		{"country_access", []mongo.IndexModel{
			uniq("uniq_country_access_brand_code", "brand_id", "code"),
		}},
		{"service_types", []mongo.IndexModel{
			uniq("uniq_service_types_brand_slug", "brand_id", "slug"),
			idx("idx_service_types_brand_sort", "brand_id", "sort_order", "name"),
		}},
		{"service_levels", []mongo.IndexModel{
			uniq("uniq_service_levels_brand_slug", "brand_id", "slug"),
			idx("idx_service_levels_brand_sort", "brand_id", "sort_order", "name"),
		}},
		{"country_pairs", []mongo.IndexModel{
			uniq("uniq_country_pairs_brand_from_to", "brand_id", "from_code", "to_code"),
			idx("idx_country_pairs_offering_type", "brand_id", "offerings.service_type_id"),
			idx("idx_country_pairs_offering_level", "brand_id", "offerings.service_level_id"),
		}},
		{"processor_weights", []mongo.IndexModel{
			uniq("uniq_processor_weights_brand_processor", "brand_id", "processor_id"),
		}},
		{"cases", []mongo.IndexModel{
			{
				Keys: bson.D{{Key: "brand_id", Value: 1}, {Key: "number", Value: 1}},
				Options: options.Index().SetName("uniq_cases_brand_number").SetUnique(true).
					SetPartialFilterExpression(bson.M{"number": bson.M{"$type": "string"}}),
			},
			idx("idx_cases_brand_status_id", "brand_id", "is_deleted", "status", "-_id"),
			idx("idx_cases_brand_assignee_id", "brand_id", "assigned_to", "-_id"),
			idx("idx_cases_client_id", "client_id", "-_id"),
			idx("idx_cases_brand_submitted", "brand_id", "submitted_at"),
			idx("idx_cases_applicant_name_ci", "brand_id", "applicant_name_ci"),
			idx("idx_cases_client_name_ci", "brand_id", "client_name_ci"),
			idx("idx_cases_status_updated", "status", "updated_at"),
		}},
		{"case_messages", []mongo.IndexModel{
			idx("idx_case_messages_case_id", "case_id", "_id"),
		}},
		{"notifications", []mongo.IndexModel{
			idx("idx_notifications_user_created", "user_id", "-created_at"),
			idx("idx_notifications_user_unread", "user_id", "read_at"),
		}},
		{"loas", []mongo.IndexModel{
			idx("idx_loas_brand_case", "brand_id", "case_id", "-created_at"),
			idx("idx_loas_brand_created", "brand_id", "-created_at"),
		}},
		{"content", []mongo.IndexModel{
			uniq("uniq_content_brand_page", "brand_id", "page"),
		}},
		{"counters", []mongo.IndexModel{
			uniq("uniq_counters_brand_name", "brand_id", "name"),
		}},
		{"audit_logs", []mongo.IndexModel{
			idx("idx_audit_brand_created", "brand_id", "-created_at"),
			idx("idx_audit_brand_category", "brand_id", "category", "-created_at"),
			idx("idx_audit_user", "user_id", "-created_at"),
			idx("idx_audit_event_type", "event_type", "-created_at"),
			idx("idx_audit_created", "-created_at"),
		}},
		{"rate_limits", []mongo.IndexModel{
			uniq("uniq_rate_limits_key", "key"),
			{
				Keys:    bson.D{{Key: "last_attempt", Value: 1}},
				Options: options.Index().SetExpireAfterSeconds(86400).SetName("idx_rate_limits_ttl"),
			},
		}},
	}
}
