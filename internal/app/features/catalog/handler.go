// Package catalog manages what a brand sells: the global country list,
// the brand's country access, service types and levels, and country
// pairs with their offerings. It also serves the public catalog used by
// the application wizard.
package catalog

import (
	"net/http"
	"strconv"

	errorsfeature "github.com/dalemusser/visadesk/internal/app/features/errors"
	catalogstore "github.com/dalemusser/visadesk/internal/app/store/catalog"
	countrystore "github.com/dalemusser/visadesk/internal/app/store/countries"
	pairstore "github.com/dalemusser/visadesk/internal/app/store/pairs"
	"github.com/dalemusser/visadesk/internal/app/system/auditlog"
	"github.com/dalemusser/visadesk/internal/app/system/auth"
	"github.com/dalemusser/visadesk/internal/app/system/pricing"
	"github.com/dalemusser/waffle/pantry/query"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type Handler struct {
	countries *countrystore.Store
	catalog   *catalogstore.Store
	pairs     *pairstore.Store
	pricing   *pricing.Service
	errLog    *errorsfeature.ErrorLogger
	audit     *auditlog.Logger
	logger    *zap.Logger
}

func NewHandler(db *mongo.Database, errLog *errorsfeature.ErrorLogger, auditLogger *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		countries: countrystore.New(db),
		catalog:   catalogstore.New(db),
		pairs:     pairstore.New(db),
		pricing:   pricing.New(db),
		errLog:    errLog,
		audit:     auditLogger,
		logger:    logger,
	}
}

func actor(r *http.Request) *primitive.ObjectID {
	su, ok := auth.CurrentUser(r)
	if !ok {
		return nil
	}
	id := su.UserID()
	return &id
}

// boolParam reads an optional true/false query parameter.
func boolParam(r *http.Request, name string) (*bool, bool) {
	s := query.Get(r, name)
	if s == "" {
		return nil, true
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, false
	}
	return &b, true
}

func itoa(n int) string { return strconv.Itoa(n) }
