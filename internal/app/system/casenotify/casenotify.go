// Package casenotify tells people about case activity: in-app
// notifications, emails and published events.
//
// Every method is best effort. Failures are logged and never returned to
// the request that triggered them, except Insert, which runs inside the
// submission transaction.
package casenotify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	notificationstore "github.com/dalemusser/visadesk/internal/app/store/notifications"
	userstore "github.com/dalemusser/visadesk/internal/app/store/users"
	"github.com/dalemusser/visadesk/internal/app/system/events"
	"github.com/dalemusser/visadesk/internal/app/system/mailer"
	"github.com/dalemusser/visadesk/internal/app/system/tenant"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const mailTimeout = 30 * time.Second

// Notifier fans case activity out to notifications, mail and events.
type Notifier struct {
	notes   *notificationstore.Store
	users   *userstore.Store
	mail    mailer.Sender
	events  *events.Emitter
	baseURL string
	logger  *zap.Logger

	wg sync.WaitGroup
}

// New builds a Notifier. mail and em may be nil.
func New(db *mongo.Database, mail mailer.Sender, em *events.Emitter, baseURL string, logger *zap.Logger) *Notifier {
	return &Notifier{
		notes:   notificationstore.New(db),
		users:   userstore.New(db),
		mail:    mail,
		events:  em,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// Wait blocks until queued emails are sent.
func (n *Notifier) Wait() { n.wg.Wait() }

// CaseURL is the client's link to an application.
func (n *Notifier) CaseURL(id primitive.ObjectID) string {
	return n.baseURL + "/applications/" + id.Hex()
}

// Insert writes a notification with ctx, returning the error. Submission
// calls it inside its transaction.
func (n *Notifier) Insert(ctx context.Context, note models.Notification) error {
	_, err := n.notes.Create(ctx, note)
	return err
}

func (n *Notifier) insert(ctx context.Context, note models.Notification) {
	if err := n.Insert(ctx, note); err != nil {
		n.logger.Warn("failed to insert notification",
			zap.String("user_id", note.UserID.Hex()),
			zap.String("kind", note.Kind),
			zap.Error(err))
	}
}

// send mails in the background, detached from the request.
func (n *Notifier) send(ctx context.Context, email mailer.Email) {
	if n.mail == nil || email.To == "" {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mailTimeout)
		defer cancel()
		if err := n.mail.Send(ctx, email); err != nil && !errors.Is(err, mailer.ErrDisabled) {
			n.logger.Warn("failed to send email", zap.String("subject", email.Subject), zap.Error(err))
		}
	}()
}

func (n *Notifier) client(ctx context.Context, c models.Case) *models.User {
	u, err := n.users.GetByID(ctx, c.ClientID)
	if err != nil {
		n.logger.Warn("failed to load case client", zap.String("case_id", c.ID.Hex()), zap.Error(err))
		return nil
	}
	return u
}

func caseRef(c models.Case) *primitive.ObjectID {
	id := c.ID
	return &id
}

// AssignedNote is the notification a processor gets for a new case.
func AssignedNote(c models.Case, processorID primitive.ObjectID) models.Notification {
	return models.Notification{
		BrandID: c.BrandID,
		UserID:  processorID,
		Kind:    models.NotifyCaseAssigned,
		Title:   "Case " + c.Number + " assigned to you",
		CaseID:  caseRef(c),
	}
}

// Submitted publishes the submission. The assignee's notification is
// written by the submission transaction.
func (n *Notifier) Submitted(ctx context.Context, c models.Case, actor primitive.ObjectID) {
	data := map[string]any{"number": c.Number}
	if c.AssignedTo != nil {
		data["assigned_to"] = c.AssignedTo.Hex()
	}
	if c.Quote != nil {
		data["total"] = c.Quote.Total
		data["currency"] = c.Quote.Currency
	}
	n.events.Emit(ctx, events.Event{Type: events.CaseSubmitted, BrandID: c.BrandID, CaseID: c.ID, ActorID: actor, Data: data})
}

// Assigned tells a processor a case was handed to them by staff.
func (n *Notifier) Assigned(ctx context.Context, c models.Case, processorID, actor primitive.ObjectID) {
	if processorID != actor {
		n.insert(ctx, AssignedNote(c, processorID))
	}
	n.events.Emit(ctx, events.Event{
		Type: events.CaseAssigned, BrandID: c.BrandID, CaseID: c.ID, ActorID: actor,
		Data: map[string]any{"processor_id": processorID.Hex()},
	})
}

// StatusChanged notifies and emails the client and publishes the change.
func (n *Notifier) StatusChanged(ctx context.Context, brand *tenant.Info, c models.Case, change models.StatusChange) {
	label := mailer.StatusLabel(change.To)
	if change.By != c.ClientID {
		n.insert(ctx, models.Notification{
			BrandID: c.BrandID,
			UserID:  c.ClientID,
			Kind:    models.NotifyCaseStatus,
			Title:   "Application " + c.Number + ": " + label,
			Body:    change.Note,
			CaseID:  caseRef(c),
		})
		if u := n.client(ctx, c); u != nil {
			email := mailer.CaseStatusEmail(mailer.CaseStatusEmailData{
				BrandName:   brand.Name,
				UserName:    u.FullName,
				CaseNumber:  c.Number,
				StatusLabel: label,
				Note:        change.Note,
				CaseURL:     n.CaseURL(c.ID),
			})
			email.To = u.Email
			n.send(ctx, email)
		}
	}
	n.events.Emit(ctx, events.Event{
		Type: events.CaseStatusChanged, BrandID: c.BrandID, CaseID: c.ID, ActorID: change.By,
		Data: map[string]any{"from": change.From, "to": change.To},
	})
}

// MessagePosted notifies the other side of the chat. A client's message
// goes to the assignee; with nobody assigned only the event is published.
func (n *Notifier) MessagePosted(ctx context.Context, brand *tenant.Info, c models.Case, m models.Message) {
	label := c.Number
	if label == "" {
		label = "your draft"
	}
	if m.SenderRole == models.SideClient {
		if c.AssignedTo != nil {
			n.insert(ctx, models.Notification{
				BrandID: c.BrandID,
				UserID:  *c.AssignedTo,
				Kind:    models.NotifyCaseMessage,
				Title:   "New message on " + label + " from " + m.SenderName,
				CaseID:  caseRef(c),
			})
		}
	} else {
		n.insert(ctx, models.Notification{
			BrandID: c.BrandID,
			UserID:  c.ClientID,
			Kind:    models.NotifyCaseMessage,
			Title:   "New message about " + label,
			CaseID:  caseRef(c),
		})
		if u := n.client(ctx, c); u != nil {
			email := mailer.CaseMessageEmail(mailer.CaseMessageEmailData{
				BrandName:  brand.Name,
				UserName:   u.FullName,
				CaseNumber: label,
				SenderName: m.SenderName,
				CaseURL:    n.CaseURL(c.ID),
			})
			email.To = u.Email
			n.send(ctx, email)
		}
	}
	n.events.Emit(ctx, events.Event{
		Type: events.MessageCreated, BrandID: c.BrandID, CaseID: c.ID, ActorID: m.SenderID,
		Data: map[string]any{"message_id": m.ID.Hex(), "sender_role": m.SenderRole},
	})
}

// LOAUploaded tells the client a letter is ready on their case.
func (n *Notifier) LOAUploaded(ctx context.Context, c models.Case, loa models.LOA, actor primitive.ObjectID) {
	n.insert(ctx, models.Notification{
		BrandID: c.BrandID,
		UserID:  c.ClientID,
		Kind:    models.NotifyLOAUploaded,
		Title:   "A document is ready for " + c.Number,
		Body:    loa.Name,
		CaseID:  caseRef(c),
	})
	n.events.Emit(ctx, events.Event{
		Type: events.LOAUploaded, BrandID: c.BrandID, CaseID: c.ID, ActorID: actor,
		Data: map[string]any{"loa_id": loa.ID.Hex(), "name": loa.Name},
	})
}

// Welcome emails a new account holder.
func (n *Notifier) Welcome(ctx context.Context, brand *tenant.Info, u models.User) {
	staff := models.IsStaffRole(u.Role)
	path := "/login"
	if staff {
		path = "/admin/login"
	}
	email := mailer.WelcomeEmail(mailer.WelcomeEmailData{
		BrandName: brand.Name,
		UserName:  u.FullName,
		LoginURL:  n.baseURL + path,
		Staff:     staff,
	})
	email.To = u.Email
	n.send(ctx, email)
}
