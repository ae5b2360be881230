// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"net/http"

	"github.com/dalemusser/visadesk/internal/app/store/audit"
	"github.com/dalemusser/visadesk/internal/app/system/network"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Destination settings for a category.
const (
	ModeAll = "all" // MongoDB and zap
	ModeDB  = "db"
	ModeLog = "log"
	ModeOff = "off"
)

// IsValidMode checks an audit destination setting.
func IsValidMode(m string) bool {
	switch m {
	case ModeAll, ModeDB, ModeLog, ModeOff:
		return true
	}
	return false
}

// Config chooses where each category goes. Case events follow Admin.
type Config struct {
	Auth  string
	Admin string
}

// Sink stores audit events.
type Sink interface {
	Log(ctx context.Context, event audit.Event) error
}

// Logger records audit events to MongoDB and zap according to Config.
type Logger struct {
	store  Sink
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(store Sink, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{store: store, zapLog: zapLog, config: config}
}

func (l *Logger) mode(category string) string {
	switch category {
	case audit.CategoryAuth:
		return l.config.Auth
	case audit.CategoryAdmin, audit.CategoryCase:
		return l.config.Admin
	}
	return ModeAll
}

func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
		zap.String("ip", event.IP),
	}
	if event.BrandID != nil {
		fields = append(fields, zap.String("brand_id", event.BrandID.Hex()))
	}
	if event.UserID != nil {
		fields = append(fields, zap.String("user_id", event.UserID.Hex()))
	}
	if event.ActorID != nil {
		fields = append(fields, zap.String("actor_id", event.ActorID.Hex()))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an event. A nil Logger is a no-op so handlers under test
// can run without one.
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}
	mode := l.mode(event.Category)
	if mode == ModeOff {
		return
	}
	if mode == ModeAll || mode == ModeLog {
		l.logToZap(event)
	}
	if (mode == ModeAll || mode == ModeDB) && l.store != nil {
		if err := l.store.Log(context.WithoutCancel(ctx), event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType))
		}
	}
}

func fromRequest(r *http.Request, brandID *primitive.ObjectID, category, eventType string) audit.Event {
	return audit.Event{
		BrandID:   brandID,
		Category:  category,
		EventType: eventType,
		IP:        network.ClientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
	}
}

// ObjectID parses a hex id for the optional id fields. Invalid input gives nil.
func ObjectID(hex string) *primitive.ObjectID {
	oid, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return nil
	}
	return &oid
}

// Auth records a successful authentication event for user.
func (l *Logger) Auth(r *http.Request, brandID, userID *primitive.ObjectID, eventType string, details map[string]string) {
	e := fromRequest(r, brandID, audit.CategoryAuth, eventType)
	e.UserID = userID
	e.Details = details
	l.Log(r.Context(), e)
}

// AuthFailed records a failed authentication attempt. userID is nil when
// the account was not found.
func (l *Logger) AuthFailed(r *http.Request, brandID, userID *primitive.ObjectID, eventType, reason string, details map[string]string) {
	e := fromRequest(r, brandID, audit.CategoryAuth, eventType)
	e.UserID = userID
	e.Success = false
	e.FailureReason = reason
	e.Details = details
	l.Log(r.Context(), e)
}

// Admin records a back-office change made by actor. target is the
// affected user, when there is one.
func (l *Logger) Admin(r *http.Request, brandID, actorID, target *primitive.ObjectID, eventType string, details map[string]string) {
	e := fromRequest(r, brandID, audit.CategoryAdmin, eventType)
	e.ActorID = actorID
	e.UserID = target
	e.Details = details
	l.Log(r.Context(), e)
}

// Case records a change to a case. The case id is kept in details.
func (l *Logger) Case(r *http.Request, brandID primitive.ObjectID, caseID primitive.ObjectID, actorID *primitive.ObjectID, eventType string, details map[string]string) {
	e := fromRequest(r, &brandID, audit.CategoryCase, eventType)
	e.ActorID = actorID
	d := map[string]string{"case_id": caseID.Hex()}
	for k, v := range details {
		d[k] = v
	}
	e.Details = d
	l.Log(r.Context(), e)
}
