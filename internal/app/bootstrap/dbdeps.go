// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/dalemusser/visadesk/internal/app/system/events"
	"github.com/dalemusser/visadesk/internal/app/system/mailer"
	"github.com/dalemusser/visadesk/internal/app/system/metrics"
	"github.com/dalemusser/waffle/pantry/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database and backend dependencies for this WAFFLE app.
//
// It is created in ConnectDB and passed to EnsureSchema, Startup,
// BuildHandler and Shutdown. Shutdown closes what ConnectDB opened.
type DBDeps struct {
	// MongoDB client and database
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database

	// FileStorage holds case documents, LOAs and CMS images.
	FileStorage storage.Store

	// Mailer sends notification emails.
	Mailer *mailer.Mailer

	// Events is the case event stream. It is events.Nop when Redis is
	// not configured; Redis is set only when it is.
	Events events.Publisher
	Redis  *events.Redis

	// Metrics are registered on Registry, which /metrics serves.
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
}
