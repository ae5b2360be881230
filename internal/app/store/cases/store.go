// internal/app/store/cases/store.go
package casestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dalemusser/visadesk/internal/app/system/paging"
	"github.com/dalemusser/visadesk/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrNotFound is returned when the case is missing, deleted for the
	// caller, or owned by someone else.
	ErrNotFound = errors.New("case not found")
	// ErrNotDraft is returned for draft-only operations on a submitted case.
	ErrNotDraft = errors.New("case is no longer a draft")
	// ErrStatusChanged is returned when the case moved on since it was read.
	ErrStatusChanged = errors.New("case status changed, reload and try again")
	// ErrDuplicateNumber is returned if a number is issued twice.
	ErrDuplicateNumber = errors.New("case number already used")
	// ErrClosed is returned for changes a closed case no longer accepts.
	ErrClosed = errors.New("case is closed")
)

type Store struct {
	c        *mongo.Collection
	counters *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("cases"), counters: db.Collection("counters")}
}

func (s *Store) one(ctx context.Context, filter bson.M) (models.Case, error) {
	var c models.Case
	err := s.c.FindOne(ctx, filter).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Case{}, ErrNotFound
	}
	return c, err
}

func (s *Store) modify(ctx context.Context, filter, update bson.M) (models.Case, error) {
	var c models.Case
	err := s.c.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Case{}, ErrNotFound
	}
	if wafflemongo.IsDup(err) {
		return models.Case{}, ErrDuplicateNumber
	}
	return c, err
}

// Get loads any case of the brand, deleted ones included.
func (s *Store) Get(ctx context.Context, brandID, id primitive.ObjectID) (models.Case, error) {
	return s.one(ctx, bson.M{"_id": id, "brand_id": brandID})
}

// GetForClient loads one of the client's own, not deleted, cases.
func (s *Store) GetForClient(ctx context.Context, brandID, clientID, id primitive.ObjectID) (models.Case, error) {
	return s.one(ctx, bson.M{"_id": id, "brand_id": brandID, "client_id": clientID, "is_deleted": false})
}

// CreateDraft inserts a new draft.
func (s *Store) CreateDraft(ctx context.Context, c models.Case) (models.Case, error) {
	now := time.Now().UTC()
	c.ID = primitive.NewObjectID()
	c.Number = ""
	c.Status = models.CaseDraft
	c.ApplicantNameCI = text.Fold(c.Applicant.FullName)
	c.Payment = models.Payment{Status: models.PaymentUnpaid}
	c.StatusHistory = []models.StatusChange{}
	c.Documents = []models.CaseDocument{}
	c.CreatedAt = now
	c.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, c); err != nil {
		return models.Case{}, err
	}
	return c, nil
}

// ListForClient returns the client's cases, newest first, excluding
// deleted ones.
func (s *Store) ListForClient(ctx context.Context, brandID, clientID primitive.ObjectID) ([]models.Case, error) {
	cur, err := s.c.Find(ctx,
		bson.M{"brand_id": brandID, "client_id": clientID, "is_deleted": false},
		options.Find().SetSort(bson.D{{Key: "_id", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []models.Case{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AdminFilter narrows the staff case list.
type AdminFilter struct {
	Status     string
	AssignedTo *primitive.ObjectID
	Archived   bool // list archived cases instead of live ones
	Deleted    bool // list deleted cases instead of live ones
	Q          string
}

func (f AdminFilter) bson(brandID primitive.ObjectID) bson.M {
	m := bson.M{
		"brand_id":   brandID,
		"is_deleted": f.Deleted,
		// Drafts are the client's business until submitted.
		"status": bson.M{"$ne": models.CaseDraft},
	}
	if !f.Deleted {
		m["is_archived"] = f.Archived
	}
	if f.Status != "" {
		m["status"] = f.Status
	}
	if f.AssignedTo != nil {
		m["assigned_to"] = *f.AssignedTo
	}
	if q := strings.TrimSpace(f.Q); q != "" {
		folded := text.Fold(q)
		hi := folded + "\uffff"
		num := strings.ToUpper(q)
		m["$or"] = []bson.M{
			{"number": bson.M{"$gte": num, "$lt": num + "\uffff"}},
			{"applicant_name_ci": bson.M{"$gte": folded, "$lt": hi}},
			{"client_name_ci": bson.M{"$gte": folded, "$lt": hi}},
		}
	}
	return m
}

// List returns one page of the staff case list, newest first.
func (s *Store) List(ctx context.Context, brandID primitive.ObjectID, f AdminFilter, page paging.Newest) (paging.Page[models.Case], error) {
	filter := f.bson(brandID)
	find := options.Find()
	page.Apply(filter, find)
	cur, err := s.c.Find(ctx, filter, find)
	if err != nil {
		return paging.Page[models.Case]{}, err
	}
	defer cur.Close(ctx)
	var rows []models.Case
	if err := cur.All(ctx, &rows); err != nil {
		return paging.Page[models.Case]{}, err
	}
	return paging.NewestPage(rows, page.Limit, func(c models.Case) primitive.ObjectID { return c.ID }), nil
}

// DraftUpdate holds the wizard fields a client may autosave.
type DraftUpdate struct {
	Applicant *models.ApplicantPatch // merged field by field into applicant
	FormData  map[string]any         // merged key by key into form_data
	Pair      *models.CountryPair
	TypeID    *primitive.ObjectID
	LevelID   *primitive.ObjectID
}

// UpdateDraft merges upd into the client's draft.
func (s *Store) UpdateDraft(ctx context.Context, brandID, clientID, id primitive.ObjectID, upd DraftUpdate) (models.Case, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if a := upd.Applicant; a != nil {
		setString(set, "applicant.full_name", a.FullName)
		setString(set, "applicant.date_of_birth", a.DateOfBirth)
		setString(set, "applicant.nationality", a.Nationality)
		setString(set, "applicant.passport_number", a.PassportNumber)
		setString(set, "applicant.passport_expiry", a.PassportExpiry)
		if a.FullName != nil {
			set["applicant_name_ci"] = text.Fold(*a.FullName)
		}
	}
	for k, v := range upd.FormData {
		set["form_data."+k] = v
	}
	if upd.Pair != nil {
		set["pair_id"] = upd.Pair.ID
		set["from_code"] = upd.Pair.FromCode
		set["to_code"] = upd.Pair.ToCode
	}
	if upd.TypeID != nil {
		set["service_type_id"] = *upd.TypeID
	}
	if upd.LevelID != nil {
		set["service_level_id"] = *upd.LevelID
	}

	c, err := s.modify(ctx,
		bson.M{"_id": id, "brand_id": brandID, "client_id": clientID, "is_deleted": false, "status": models.CaseDraft},
		bson.M{"$set": set})
	if errors.Is(err, ErrNotFound) {
		return models.Case{}, s.draftMiss(ctx, brandID, clientID, id)
	}
	return c, err
}

func setString(set bson.M, key string, v *string) {
	if v != nil {
		set[key] = *v
	}
}

// draftMiss tells "not yours / gone" apart from "no longer a draft".
func (s *Store) draftMiss(ctx context.Context, brandID, clientID, id primitive.ObjectID) error {
	c, err := s.GetForClient(ctx, brandID, clientID, id)
	if err != nil {
		return err
	}
	if c.Status != models.CaseDraft {
		return ErrNotDraft
	}
	return ErrStatusChanged
}

// SubmitInput is what submission freezes into the draft.
type SubmitInput struct {
	Number     string
	Quote      models.Quote
	AssignedTo *primitive.ObjectID
	By         primitive.ObjectID
	At         time.Time
}

// Submit turns the client's draft into a submitted case.
func (s *Store) Submit(ctx context.Context, brandID, clientID, id primitive.ObjectID, in SubmitInput) (models.Case, error) {
	set := bson.M{
		"number":       in.Number,
		"quote":        in.Quote,
		"status":       models.CaseSubmitted,
		"submitted_at": in.At,
		"updated_at":   in.At,
	}
	if in.AssignedTo != nil {
		set["assigned_to"] = *in.AssignedTo
	}
	c, err := s.modify(ctx,
		bson.M{"_id": id, "brand_id": brandID, "client_id": clientID, "is_deleted": false, "status": models.CaseDraft},
		bson.M{
			"$set": set,
			"$push": bson.M{"status_history": models.StatusChange{
				From: models.CaseDraft, To: models.CaseSubmitted, By: in.By, At: in.At,
			}},
		})
	if errors.Is(err, ErrNotFound) {
		return models.Case{}, s.draftMiss(ctx, brandID, clientID, id)
	}
	return c, err
}

// Transition moves a case from change.From to change.To, appending the
// history entry. It fails with ErrStatusChanged if the case is no longer
// in change.From. Entering a terminal status sets closed_at.
func (s *Store) Transition(ctx context.Context, brandID, id primitive.ObjectID, change models.StatusChange) (models.Case, error) {
	set := bson.M{"status": change.To, "updated_at": change.At}
	if models.IsTerminalStatus(change.To) {
		set["closed_at"] = change.At
	}
	c, err := s.modify(ctx,
		bson.M{"_id": id, "brand_id": brandID, "status": change.From, "is_deleted": false},
		bson.M{"$set": set, "$push": bson.M{"status_history": change}})
	if errors.Is(err, ErrNotFound) {
		if _, gerr := s.Get(ctx, brandID, id); gerr != nil {
			return models.Case{}, gerr
		}
		return models.Case{}, ErrStatusChanged
	}
	return c, err
}

func (s *Store) setFields(ctx context.Context, brandID, id primitive.ObjectID, set bson.M) (models.Case, error) {
	set["updated_at"] = time.Now().UTC()
	return s.modify(ctx, bson.M{"_id": id, "brand_id": brandID}, bson.M{"$set": set})
}

// Assign sets the case's processor.
func (s *Store) Assign(ctx context.Context, brandID, id, processorID primitive.ObjectID) (models.Case, error) {
	return s.setFields(ctx, brandID, id, bson.M{"assigned_to": processorID})
}

// SetArchived archives or unarchives a case.
func (s *Store) SetArchived(ctx context.Context, brandID, id primitive.ObjectID, archived bool) (models.Case, error) {
	return s.setFields(ctx, brandID, id, bson.M{"is_archived": archived})
}

// SetDeleted soft-deletes or restores a case.
func (s *Store) SetDeleted(ctx context.Context, brandID, id primitive.ObjectID, deleted bool) (models.Case, error) {
	return s.setFields(ctx, brandID, id, bson.M{"is_deleted": deleted})
}

// DeleteDraft soft-deletes the client's own draft.
func (s *Store) DeleteDraft(ctx context.Context, brandID, clientID, id primitive.ObjectID) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "brand_id": brandID, "client_id": clientID, "is_deleted": false, "status": models.CaseDraft},
		bson.M{"$set": bson.M{"is_deleted": true, "updated_at": time.Now().UTC()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return s.draftMiss(ctx, brandID, clientID, id)
	}
	return nil
}

// SetPayment records the payment state. paid_at is set when it becomes paid.
func (s *Store) SetPayment(ctx context.Context, brandID, id primitive.ObjectID, status, reference string) (models.Case, error) {
	set := bson.M{"payment.status": status, "payment.reference": reference}
	if status == models.PaymentPaid {
		set["payment.paid_at"] = time.Now().UTC()
	}
	return s.setFields(ctx, brandID, id, set)
}

// AddDocument attaches a stored document to an open case.
func (s *Store) AddDocument(ctx context.Context, brandID, id primitive.ObjectID, doc models.CaseDocument) (models.Case, error) {
	c, err := s.modify(ctx,
		bson.M{"_id": id, "brand_id": brandID, "is_deleted": false, "status": bson.M{"$nin": terminal}},
		bson.M{
			"$push": bson.M{"documents": doc},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		})
	if errors.Is(err, ErrNotFound) {
		return models.Case{}, s.closedOrMissing(ctx, brandID, id)
	}
	return c, err
}

// RemoveDocument detaches a document from an open case and returns it
// so the caller can delete the object.
func (s *Store) RemoveDocument(ctx context.Context, brandID, id, docID primitive.ObjectID) (models.CaseDocument, error) {
	var before models.Case
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "brand_id": brandID, "is_deleted": false, "status": bson.M{"$nin": terminal}, "documents.id": docID},
		bson.M{
			"$pull": bson.M{"documents": bson.M{"id": docID}},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&before)
	if errors.Is(err, mongo.ErrNoDocuments) {
		c, gerr := s.Get(ctx, brandID, id)
		if gerr != nil {
			return models.CaseDocument{}, gerr
		}
		if !c.IsOpen() {
			return models.CaseDocument{}, ErrClosed
		}
		return models.CaseDocument{}, ErrNotFound
	}
	if err != nil {
		return models.CaseDocument{}, err
	}
	doc, _ := before.FindDocument(docID)
	return doc, nil
}

var terminal = []string{models.CaseCompleted, models.CaseRejected, models.CaseCancelled}

func (s *Store) closedOrMissing(ctx context.Context, brandID, id primitive.ObjectID) error {
	c, err := s.Get(ctx, brandID, id)
	if err != nil {
		return err
	}
	if !c.IsOpen() {
		return ErrClosed
	}
	return ErrStatusChanged
}

// MarkRead records when side last read the case chat. It never moves
// the marker backwards.
func (s *Store) MarkRead(ctx context.Context, brandID, id primitive.ObjectID, side string, at time.Time) error {
	field := "staff_last_read_at"
	if side == models.SideClient {
		field = "client_last_read_at"
	}
	_, err := s.c.UpdateOne(ctx, bson.M{"_id": id, "brand_id": brandID}, bson.M{"$max": bson.M{field: at}})
	return err
}

// TouchMessage records the time of the latest chat message.
func (s *Store) TouchMessage(ctx context.Context, brandID, id primitive.ObjectID, at time.Time) error {
	_, err := s.c.UpdateOne(ctx, bson.M{"_id": id, "brand_id": brandID}, bson.M{"$set": bson.M{"last_message_at": at}})
	return err
}

// ForStaffChat lists open cases visible to a staff member for unread
// counts. A nil assignee means every case in the brand.
func (s *Store) ForStaffChat(ctx context.Context, brandID primitive.ObjectID, assignee *primitive.ObjectID) ([]models.Case, error) {
	filter := bson.M{"brand_id": brandID, "is_deleted": false, "last_message_at": bson.M{"$ne": nil}}
	if assignee != nil {
		filter["assigned_to"] = *assignee
	}
	opts := options.Find().SetProjection(bson.M{
		"_id": 1, "number": 1, "status": 1, "staff_last_read_at": 1, "last_message_at": 1, "assigned_to": 1,
	}).SetSort(bson.D{{Key: "last_message_at", Value: -1}}).SetLimit(500)
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []models.Case{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
