package testutil

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dalemusser/visadesk/internal/app/system/authutil"
	"github.com/dalemusser/visadesk/internal/app/system/tenant"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// MinimalPDF is a tiny body that passes the PDF signature check.
var MinimalPDF = []byte("%PDF-1.4\n1 0 obj<<>>endobj\ntrailer<<>>\n%%EOF\n")

// PNGHeader is enough of a PNG for content sniffing.
var PNGHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

// InsertBrand writes an active brand straight to the brands collection.
func InsertBrand(t *testing.T, db *mongo.Database, slug string) *tenant.Info {
	t.Helper()
	ctx, cancel := TestContext()
	defer cancel()

	now := time.Now().UTC()
	b := models.Brand{
		ID:         primitive.NewObjectID(),
		Slug:       slug,
		Name:       slug,
		NameCI:     text.Fold(slug),
		Domains:    []string{},
		Status:     models.StatusActive,
		CasePrefix: "VD",
		Currency:   models.DefaultCurrency,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := db.Collection("brands").InsertOne(ctx, b); err != nil {
		t.Fatalf("insert brand: %v", err)
	}
	return tenant.InfoFrom(b)
}

// DefaultPassword is the password of users created by InsertUser.
const DefaultPassword = "correct-horse-7"

// InsertUser writes an active user with DefaultPassword to the users
// collection. brand may be nil for a superadmin.
func InsertUser(t *testing.T, db *mongo.Database, brand *tenant.Info, role, email string) models.User {
	t.Helper()
	ctx, cancel := TestContext()
	defer cancel()

	hash, err := authutil.HashPassword(DefaultPassword)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	now := time.Now().UTC()
	u := models.User{
		ID:           primitive.NewObjectID(),
		FullName:     "User " + email,
		FullNameCI:   text.Fold("User " + email),
		Email:        email,
		EmailCI:      text.Fold(email),
		AuthMethod:   models.AuthPassword,
		PasswordHash: &hash,
		Role:         role,
		Status:       models.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if brand != nil {
		id := brand.ID
		u.BrandID = &id
	}
	if _, err := db.Collection("users").InsertOne(ctx, u); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	return u
}

// CaseOptions tweaks a case written by InsertCase.
type CaseOptions struct {
	Status     string // defaults to submitted
	AssignedTo *primitive.ObjectID
	Number     string
}

// InsertCase writes a case for client straight to the cases collection.
// Non-draft cases get a number and a submitted_at time.
func InsertCase(t *testing.T, db *mongo.Database, brand *tenant.Info, client models.User, opts CaseOptions) models.Case {
	t.Helper()
	ctx, cancel := TestContext()
	defer cancel()

	if opts.Status == "" {
		opts.Status = models.CaseSubmitted
	}
	now := time.Now().UTC()
	c := models.Case{
		ID:              primitive.NewObjectID(),
		BrandID:         brand.ID,
		ClientID:        client.ID,
		ClientNameCI:    text.Fold(client.FullName),
		PairID:          primitive.NewObjectID(),
		FromCode:        "US",
		ToCode:          "IN",
		ServiceTypeID:   primitive.NewObjectID(),
		ServiceLevelID:  primitive.NewObjectID(),
		Applicant:       models.Applicant{FullName: "Jane Traveler"},
		ApplicantNameCI: text.Fold("Jane Traveler"),
		Payment:         models.Payment{Status: models.PaymentUnpaid},
		Status:          opts.Status,
		StatusHistory:   []models.StatusChange{},
		AssignedTo:      opts.AssignedTo,
		Documents:       []models.CaseDocument{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if opts.Status != models.CaseDraft {
		c.Number = opts.Number
		if c.Number == "" {
			c.Number = brand.CasePrefix + "-" + c.ID.Hex()[18:]
		}
		c.SubmittedAt = &now
		c.Quote = &models.Quote{GovernmentFee: 5000, ServiceFee: 2500, Total: 7500, Currency: models.DefaultCurrency, QuotedAt: now}
	}
	if _, err := db.Collection("cases").InsertOne(ctx, c); err != nil {
		t.Fatalf("insert case: %v", err)
	}
	return c
}

// MultipartRequest builds a multipart/form-data request with one file
// part named fileField and the given plain fields.
func MultipartRequest(t *testing.T, method, target, fileField, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if fileField != "" {
		fw, err := mw.CreateFormFile(fileField, filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(content); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}
