package applications

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/visadesk/internal/app/store/audit"
	casestore "github.com/dalemusser/visadesk/internal/app/store/cases"
	"github.com/dalemusser/visadesk/internal/app/system/auth"
	"github.com/dalemusser/visadesk/internal/app/system/casenotify"
	"github.com/dalemusser/visadesk/internal/app/system/jsonutil"
	"github.com/dalemusser/visadesk/internal/app/system/metrics"
	"github.com/dalemusser/visadesk/internal/app/system/pricing"
	"github.com/dalemusser/visadesk/internal/app/system/tenant"
	"github.com/dalemusser/visadesk/internal/app/system/timeouts"
	"github.com/dalemusser/visadesk/internal/app/system/txn"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"go.uber.org/zap"
)

// submit freezes the quote, issues the case number, assigns a processor
// and moves the draft to submitted. The counter, weight, case and
// notification writes share one transaction when the server allows it.
func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	su, _ := auth.CurrentUser(r)
	uid := su.UserID()
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.logger, "application submit")
	defer cancel()

	c, ok := h.own(ctx, w, r)
	if !ok {
		return
	}
	if c.Status != models.CaseDraft {
		jsonutil.Conflict(w, casestore.ErrNotDraft.Error())
		return
	}
	now := time.Now().UTC()
	if errs := validateApplicant(c.Applicant, true, now); len(errs) > 0 {
		jsonutil.ValidationError(w, errs)
		return
	}

	pairID := c.PairID
	priced, err := h.pricing.Quote(ctx, brand.ID, brand.Currency, pricing.Request{
		PairID: &pairID, TypeID: c.ServiceTypeID, LevelID: c.ServiceLevelID,
	})
	if err != nil {
		if !writeChoiceError(w, err, http.StatusConflict) {
			h.errLog.Internal(w, r, "failed to price application", err)
		}
		return
	}

	var submitted models.Case
	err = txn.Run(ctx, h.db, h.logger, func(ctx context.Context) error {
		number, err := h.cases.NextNumber(ctx, brand.ID, brand.CasePrefix)
		if err != nil {
			return err
		}
		processor, assigned, err := h.weights.Assign(ctx, brand.ID)
		if err != nil {
			return err
		}
		in := casestore.SubmitInput{Number: number, Quote: priced.Quote, By: uid, At: now}
		if assigned {
			in.AssignedTo = &processor
		}
		submitted, err = h.cases.Submit(ctx, brand.ID, uid, c.ID, in)
		if err != nil {
			return err
		}
		if assigned {
			return h.notifier.Insert(ctx, casenotify.AssignedNote(submitted, processor))
		}
		return nil
	})
	if err != nil {
		if !writeCaseError(w, err) {
			h.errLog.Internal(w, r, "failed to submit application", err)
		}
		return
	}

	outcome := metrics.OutcomeUnassigned
	if submitted.AssignedTo != nil {
		outcome = metrics.OutcomeWeighted
	} else {
		h.logger.Warn("submitted case has no processor",
			zap.String("brand", brand.Slug), zap.String("case", submitted.Number))
	}
	h.metrics.CaseSubmitted(brand.Slug)
	h.metrics.CaseAssigned(brand.Slug, outcome)
	h.notifier.Submitted(ctx, submitted, uid)
	h.audit.Case(r, brand.ID, submitted.ID, &uid, audit.EventCaseSubmitted, map[string]string{
		"number": submitted.Number,
		"total":  formatMinor(submitted.Quote),
	})
	jsonutil.OK(w, submitted)
}

func formatMinor(q *models.Quote) string {
	if q == nil {
		return ""
	}
	return q.Currency + " " + strconv.FormatInt(q.Total, 10)
}

type cancelInput struct {
	Reason string `json:"reason"`
}

// cancel lets the client withdraw a case that has not reached processing.
func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	su, _ := auth.CurrentUser(r)
	uid := su.UserID()
	var in cancelInput
	if r.ContentLength > 0 {
		if err := jsonutil.Decode(r, &in); err != nil {
			jsonutil.BadRequest(w, err.Error())
			return
		}
	}
	reason := strings.TrimSpace(in.Reason)
	if len(reason) > 1000 {
		jsonutil.ValidationError(w, map[string]string{"reason": "Reason must be at most 1000 characters."})
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.logger, "application cancel")
	defer cancel()
	c, ok := h.own(ctx, w, r)
	if !ok {
		return
	}
	if err := models.CanTransition(c.Status, models.CaseCancelled, false); err != nil {
		jsonutil.Conflict(w, "this application can no longer be cancelled")
		return
	}

	change := models.StatusChange{From: c.Status, To: models.CaseCancelled, By: uid, Note: reason, At: time.Now().UTC()}
	c, err := h.cases.Transition(ctx, brand.ID, c.ID, change)
	if err != nil {
		if !writeCaseError(w, err) {
			h.errLog.Internal(w, r, "failed to cancel application", err)
		}
		return
	}
	if change.From != models.CaseDraft {
		h.notifier.StatusChanged(ctx, brand, c, change)
		h.audit.Case(r, brand.ID, c.ID, &uid, audit.EventCaseStatusChanged, map[string]string{
			"from": change.From, "to": change.To,
		})
	}
	jsonutil.OK(w, c)
}
