// Package events publishes case lifecycle events for downstream consumers
// (CRM sync, partner webhooks) over a Redis stream.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// DefaultStream is the stream events go to when none is configured.
const DefaultStream = "visadesk:events"

// Event types.
const (
	CaseSubmitted     = "case.submitted"
	CaseStatusChanged = "case.status_changed"
	CaseAssigned      = "case.assigned"
	MessageCreated    = "message.created"
	LOAUploaded       = "loa.uploaded"
)

// Event is one published fact.
type Event struct {
	Type    string
	BrandID primitive.ObjectID
	CaseID  primitive.ObjectID
	ActorID primitive.ObjectID
	At      time.Time
	Data    map[string]any
}

// Publisher sends events somewhere.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop drops every event. It is used when no Redis address is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Config holds the Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

// Redis appends events to a stream with XADD.
type Redis struct {
	client *redis.Client
	stream string
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, cfg Config) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	stream := cfg.Stream
	if stream == "" {
		stream = DefaultStream
	}
	return &Redis{client: rdb, stream: stream}, nil
}

// Publish adds e to the stream.
func (p *Redis) Publish(ctx context.Context, e Event) error {
	values, err := Fields(e)
	if err != nil {
		return err
	}
	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("failed to XADD to stream %s: %w", p.stream, err)
	}
	return nil
}

// Ping checks the Redis connection. Health checks use it.
func (p *Redis) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (p *Redis) Close() error {
	return p.client.Close()
}

// Fields flattens e into stream entry fields. Data is JSON encoded;
// zero ids are sent as empty strings.
func Fields(e Event) (map[string]any, error) {
	data := []byte("{}")
	if len(e.Data) > 0 {
		var err error
		if data, err = json.Marshal(e.Data); err != nil {
			return nil, fmt.Errorf("encode event data: %w", err)
		}
	}
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	return map[string]any{
		"type":     e.Type,
		"brand_id": hexOrEmpty(e.BrandID),
		"case_id":  hexOrEmpty(e.CaseID),
		"actor_id": hexOrEmpty(e.ActorID),
		"at":       at.UTC().Format(time.RFC3339Nano),
		"data":     string(data),
	}, nil
}

func hexOrEmpty(id primitive.ObjectID) string {
	if id.IsZero() {
		return ""
	}
	return id.Hex()
}

// Emitter wraps a Publisher so callers can fire and forget: failures are
// logged and never surface to the request.
type Emitter struct {
	pub    Publisher
	logger *zap.Logger
}

// NewEmitter wraps pub. A nil pub behaves like Nop.
func NewEmitter(pub Publisher, logger *zap.Logger) *Emitter {
	if pub == nil {
		pub = Nop{}
	}
	return &Emitter{pub: pub, logger: logger}
}

// Emit publishes e with its own short deadline, detached from the
// request's cancellation.
func (em *Emitter) Emit(ctx context.Context, e Event) {
	if em == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := em.pub.Publish(ctx, e); err != nil {
		em.logger.Warn("event publish failed",
			zap.String("type", e.Type),
			zap.String("case_id", hexOrEmpty(e.CaseID)),
			zap.Error(err))
	}
}
