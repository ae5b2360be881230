// Package txn runs multi-document writes in a MongoDB transaction when the
// deployment supports one.
//
// Case submission touches the counters, processor_weights, cases and
// notifications collections; on a replica set those writes commit together.
// A standalone server (the usual development setup) cannot start a
// transaction, so Run falls back to executing the function directly.
//
// Usage:
//
//	err := txn.Run(ctx, db, log, func(ctx context.Context) error {
//	    if _, err := cases.UpdateOne(ctx, filter, update); err != nil {
//	        return err
//	    }
//	    return notes.Insert(ctx, n)
//	})
package txn

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Func is the unit of work. The ctx it receives is a mongo.SessionContext
// inside a transaction, or the caller's ctx on fallback; stores must use it.
type Func func(ctx context.Context) error

// Run executes fn inside a transaction, or directly when transactions are
// not supported. log may be nil.
func Run(ctx context.Context, db *mongo.Database, log *zap.Logger, fn Func) error {
	session, err := db.Client().StartSession()
	if err != nil {
		warn(log, "failed to start session, running without transaction", err)
		return fn(ctx)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, fn(sc)
	})
	if err != nil && IsNotSupported(err) {
		warn(log, "transactions not supported, running without transaction", err)
		return fn(ctx)
	}
	return err
}

func warn(log *zap.Logger, msg string, err error) {
	if log != nil {
		log.Warn(msg, zap.Error(err))
	}
}

// IsNotSupported reports whether err means the deployment cannot run
// multi-document transactions.
//
// Known codes: 20 (IllegalOperation on standalone), 51, 263.
func IsNotSupported(err error) bool {
	if err == nil {
		return false
	}

	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		switch cmdErr.Code {
		case 20, 51, 263:
			return true
		}
	}

	// DocumentDB and older servers only say it in prose; two keyword hits
	// keep ordinary errors that mention "session" from matching.
	msg := strings.ToLower(err.Error())
	hits := 0
	for _, kw := range []string{"transaction", "replica set", "session", "not supported", "illegal operation"} {
		if strings.Contains(msg, kw) {
			hits++
		}
	}
	return hits >= 2
}
