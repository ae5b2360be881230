// Package reports serves the staff dashboard statistics and the CSV case
// export.
package reports

import (
	"net/http"
	"time"

	errorsfeature "github.com/dalemusser/visadesk/internal/app/features/errors"
	casestore "github.com/dalemusser/visadesk/internal/app/store/cases"
	catalogstore "github.com/dalemusser/visadesk/internal/app/store/catalog"
	messagestore "github.com/dalemusser/visadesk/internal/app/store/messages"
	userstore "github.com/dalemusser/visadesk/internal/app/store/users"
	"github.com/dalemusser/visadesk/internal/app/system/auth"
	"github.com/dalemusser/visadesk/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// fanOutLimit bounds how many statistics query Mongo at once.
const fanOutLimit = 4

type Handler struct {
	cases       *casestore.Store
	catalog     *catalogstore.Store
	messages    *messagestore.Store
	users       *userstore.Store
	statTimeout time.Duration
	errLog      *errorsfeature.ErrorLogger
	logger      *zap.Logger
}

func NewHandler(db *mongo.Database, errLog *errorsfeature.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		cases:       casestore.New(db),
		catalog:     catalogstore.New(db),
		messages:    messagestore.New(db),
		users:       userstore.New(db),
		statTimeout: timeouts.Medium(),
		errLog:      errLog,
		logger:      logger,
	}
}

// Routes is mounted at /admin/reports.
func Routes(h *Handler, sm *auth.SessionManager) http.Handler {
	r := chi.NewRouter()
	r.Use(sm.RequireManager)
	r.Get("/dashboard", h.dashboard)
	r.Get("/cases.csv", h.exportCSV)
	return r
}

// parseRange reads from/to as YYYY-MM-DD UTC days. to is inclusive.
func parseRange(r *http.Request) (casestore.Range, string) {
	var rg casestore.Range
	if s := query.Get(r, "from"); s != "" {
		t, err := time.Parse(time.DateOnly, s)
		if err != nil {
			return rg, "from must be a YYYY-MM-DD date"
		}
		rg.From = t
	}
	if s := query.Get(r, "to"); s != "" {
		t, err := time.Parse(time.DateOnly, s)
		if err != nil {
			return rg, "to must be a YYYY-MM-DD date"
		}
		rg.To = t.AddDate(0, 0, 1)
	}
	if !rg.From.IsZero() && !rg.To.IsZero() && !rg.From.Before(rg.To) {
		return rg, "from must not be after to"
	}
	return rg, ""
}
