package reports

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	casestore "github.com/dalemusser/visadesk/internal/app/store/cases"
	userstore "github.com/dalemusser/visadesk/internal/app/store/users"
	"github.com/dalemusser/visadesk/internal/app/system/jsonutil"
	"github.com/dalemusser/visadesk/internal/app/system/tenant"
	"github.com/dalemusser/visadesk/internal/app/system/timeouts"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

var csvHeader = []string{
	"number", "applicant", "from", "to", "service_type", "service_level",
	"total", "currency", "payment", "status", "assigned_to", "submitted_at", "closed_at",
}

// csvCell keeps spreadsheet apps from evaluating user text as a formula.
func csvCell(s string) string {
	if s != "" && strings.ContainsRune("=+-@\t\r", rune(s[0])) {
		return "'" + s
	}
	return s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// exportCSV streams matching submitted cases. Once the header is written
// errors can only be logged.
func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	rg, msg := parseRange(r)
	if msg != "" {
		jsonutil.BadRequest(w, msg)
		return
	}
	f := casestore.ExportFilter{Range: rg}
	if st := query.Get(r, "status"); st != "" {
		if !models.IsValidCaseStatus(st) || st == models.CaseDraft {
			jsonutil.BadRequest(w, "unknown status")
			return
		}
		f.Status = st
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.logger, "case export")
	defer cancel()

	types, err := h.catalog.ListTypes(ctx, brand.ID, false)
	if err != nil {
		h.errLog.Internal(w, r, "failed to load service types", err)
		return
	}
	levels, err := h.catalog.ListLevels(ctx, brand.ID, false)
	if err != nil {
		h.errLog.Internal(w, r, "failed to load service levels", err)
		return
	}
	typeNames := make(map[primitive.ObjectID]string, len(types))
	for _, t := range types {
		typeNames[t.ID] = t.Name
	}
	levelNames := make(map[primitive.ObjectID]string, len(levels))
	for _, l := range levels {
		levelNames[l.ID] = l.Name
	}
	staff, err := h.users.ListStaff(ctx, brand.ID, userstore.StaffFilter{})
	if err != nil {
		h.errLog.Internal(w, r, "failed to load staff", err)
		return
	}
	assignees := make(map[primitive.ObjectID]string, len(staff))
	for _, u := range staff {
		assignees[u.ID] = u.FullName
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s-cases-%s.csv"`, brand.Slug, time.Now().UTC().Format("20060102")))
	cw := csv.NewWriter(w)
	_ = cw.Write(csvHeader)

	rows := 0
	err = h.cases.Each(ctx, brand.ID, f, func(c models.Case) error {
		var total, currency, assignee string
		if c.Quote != nil {
			total = strconv.FormatInt(c.Quote.Total, 10)
			currency = c.Quote.Currency
		}
		if c.AssignedTo != nil {
			assignee = assignees[*c.AssignedTo]
			if assignee == "" {
				assignee = c.AssignedTo.Hex()
			}
		}
		rows++
		return cw.Write([]string{
			c.Number, csvCell(c.Applicant.FullName), c.FromCode, c.ToCode,
			csvCell(typeNames[c.ServiceTypeID]), csvCell(levelNames[c.ServiceLevelID]),
			total, currency, c.Payment.Status, c.Status, csvCell(assignee),
			formatTime(c.SubmittedAt), formatTime(c.ClosedAt),
		})
	})
	cw.Flush()
	if err == nil {
		err = cw.Error()
	}
	if err != nil {
		h.logger.Error("case export aborted",
			zap.String("brand", brand.Slug), zap.Int("rows", rows), zap.Error(err))
		return
	}
	h.logger.Info("case export", zap.String("brand", brand.Slug), zap.Int("rows", rows))
}
