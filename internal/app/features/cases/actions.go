package cases

import (
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/visadesk/internal/app/store/audit"
	"github.com/dalemusser/visadesk/internal/app/system/auth"
	"github.com/dalemusser/visadesk/internal/app/system/jsonutil"
	"github.com/dalemusser/visadesk/internal/app/system/metrics"
	"github.com/dalemusser/visadesk/internal/app/system/tenant"
	"github.com/dalemusser/visadesk/internal/app/system/timeouts"
	"github.com/dalemusser/visadesk/internal/app/system/uploads"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const maxNoteLength = 2000

type statusInput struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

// setStatus moves a case along the status machine and tells the client.
func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	su, _ := auth.CurrentUser(r)
	uid := su.UserID()

	var in statusInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	in.Status = strings.ToLower(strings.TrimSpace(in.Status))
	in.Note = strings.TrimSpace(in.Note)
	fields := map[string]string{}
	if !models.IsValidCaseStatus(in.Status) {
		fields["status"] = "Status must be one of: " + strings.Join(models.CaseStatuses, ", ") + "."
	}
	if len(in.Note) > maxNoteLength {
		fields["note"] = "Note must be at most 2000 characters."
	}
	if len(fields) > 0 {
		jsonutil.ValidationError(w, fields)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.logger, "case status")
	defer cancel()
	c, ok := h.load(ctx, w, r, false)
	if !ok {
		return
	}
	if err := models.CanTransition(c.Status, in.Status, true); err != nil {
		jsonutil.Conflict(w, "cannot move a case from "+c.Status+" to "+in.Status)
		return
	}

	change := models.StatusChange{From: c.Status, To: in.Status, By: uid, Note: in.Note, At: time.Now().UTC()}
	c, err := h.cases.Transition(ctx, brand.ID, c.ID, change)
	if err != nil {
		if !writeCaseError(w, err) {
			h.errLog.Internal(w, r, "failed to change case status", err)
		}
		return
	}
	h.notifier.StatusChanged(ctx, brand, c, change)
	h.audit.Case(r, brand.ID, c.ID, &uid, audit.EventCaseStatusChanged, map[string]string{
		"from": change.From, "to": change.To,
	})
	jsonutil.OK(w, view(c))
}

type assignInput struct {
	ProcessorID string `json:"processor_id"`
}

// assign hands a case to a processor by hand, outside the load balancer.
func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	su, _ := auth.CurrentUser(r)
	uid := su.UserID()

	var in assignInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	pid, err := primitive.ObjectIDFromHex(strings.TrimSpace(in.ProcessorID))
	if err != nil {
		jsonutil.ValidationError(w, map[string]string{"processor_id": "A processor is required."})
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.logger, "case assign")
	defer cancel()
	c, ok := h.load(ctx, w, r, false)
	if !ok {
		return
	}
	if !c.IsOpen() {
		jsonutil.Conflict(w, "closed cases cannot be reassigned")
		return
	}
	procs, err := h.users.ActiveProcessors(ctx, brand.ID, []primitive.ObjectID{pid})
	if err != nil {
		h.errLog.Internal(w, r, "failed to check processor", err)
		return
	}
	if _, found := procs[pid]; !found {
		jsonutil.ValidationError(w, map[string]string{"processor_id": "Processor must be an active staff member of this brand."})
		return
	}

	c, err = h.cases.Assign(ctx, brand.ID, c.ID, pid)
	if err != nil {
		if !writeCaseError(w, err) {
			h.errLog.Internal(w, r, "failed to assign case", err)
		}
		return
	}
	h.metrics.CaseAssigned(brand.Slug, metrics.OutcomeManual)
	h.notifier.Assigned(ctx, c, pid, uid)
	h.audit.Case(r, brand.ID, c.ID, &uid, audit.EventCaseAssigned, map[string]string{"processor_id": pid.Hex()})
	v := view(c)
	v.AssigneeName = procs[pid].FullName
	jsonutil.OK(w, v)
}

func (h *Handler) archive(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, true)
}

func (h *Handler) unarchive(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, false)
}

func (h *Handler) setArchived(w http.ResponseWriter, r *http.Request, archived bool) {
	brand := tenant.MustBrand(r)
	su, _ := auth.CurrentUser(r)
	uid := su.UserID()
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "case archive")
	defer cancel()
	c, ok := h.load(ctx, w, r, false)
	if !ok {
		return
	}
	c, err := h.cases.SetArchived(ctx, brand.ID, c.ID, archived)
	if err != nil {
		if !writeCaseError(w, err) {
			h.errLog.Internal(w, r, "failed to archive case", err)
		}
		return
	}
	h.audit.Case(r, brand.ID, c.ID, &uid, audit.EventCaseArchived, map[string]string{
		"archived": boolString(archived),
	})
	jsonutil.OK(w, view(c))
}

// delete soft-deletes a case. It disappears from every list until restored.
func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	h.setDeleted(w, r, true)
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	h.setDeleted(w, r, false)
}

func (h *Handler) setDeleted(w http.ResponseWriter, r *http.Request, deleted bool) {
	brand := tenant.MustBrand(r)
	su, _ := auth.CurrentUser(r)
	uid := su.UserID()
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "case delete")
	defer cancel()
	c, ok := h.load(ctx, w, r, true)
	if !ok {
		return
	}
	if c.IsDeleted == deleted {
		jsonutil.OK(w, view(c))
		return
	}
	c, err := h.cases.SetDeleted(ctx, brand.ID, c.ID, deleted)
	if err != nil {
		if !writeCaseError(w, err) {
			h.errLog.Internal(w, r, "failed to delete case", err)
		}
		return
	}
	event := audit.EventCaseDeleted
	if !deleted {
		event = audit.EventCaseRestored
	}
	h.audit.Case(r, brand.ID, c.ID, &uid, event, nil)
	if deleted {
		jsonutil.NoContent(w)
		return
	}
	jsonutil.OK(w, view(c))
}

type paymentInput struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
}

// payment records what the client paid.
func (h *Handler) payment(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	su, _ := auth.CurrentUser(r)
	uid := su.UserID()

	var in paymentInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	in.Status = strings.ToLower(strings.TrimSpace(in.Status))
	in.Reference = strings.TrimSpace(in.Reference)
	fields := map[string]string{}
	if !models.IsValidPaymentStatus(in.Status) {
		fields["status"] = "Status must be unpaid, paid or refunded."
	}
	if len(in.Reference) > 200 {
		fields["reference"] = "Reference must be at most 200 characters."
	}
	if len(fields) > 0 {
		jsonutil.ValidationError(w, fields)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "case payment")
	defer cancel()
	c, ok := h.load(ctx, w, r, false)
	if !ok {
		return
	}
	c, err := h.cases.SetPayment(ctx, brand.ID, c.ID, in.Status, in.Reference)
	if err != nil {
		if !writeCaseError(w, err) {
			h.errLog.Internal(w, r, "failed to record payment", err)
		}
		return
	}
	h.audit.Case(r, brand.ID, c.ID, &uid, audit.EventCasePayment, map[string]string{
		"status": in.Status, "reference": in.Reference,
	})
	jsonutil.OK(w, view(c))
}

func (h *Handler) downloadDocument(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.logger, "case document download")
	defer cancel()
	c, ok := h.load(ctx, w, r, true)
	if !ok {
		return
	}
	docID, ok := jsonutil.ObjectID(w, "document id", chi.URLParam(r, "docID"))
	if !ok {
		return
	}
	doc, found := c.FindDocument(docID)
	if !found {
		jsonutil.NotFound(w, "document not found")
		return
	}
	if err := uploads.Download(ctx, w, r, h.files, doc.StoragePath, doc.Name, h.downloadTTL); err != nil {
		h.errLog.Internal(w, r, "failed to serve document", err)
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
