package applications

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/visadesk/internal/app/system/auth"
	"github.com/dalemusser/visadesk/internal/app/system/jsonutil"
	"github.com/dalemusser/visadesk/internal/app/system/tenant"
	"github.com/dalemusser/visadesk/internal/app/system/timeouts"
	"github.com/dalemusser/visadesk/internal/app/system/uploads"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func (h *Handler) uploadDocument(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	su, _ := auth.CurrentUser(r)
	if err := uploads.ParseForm(w, r, h.maxBytes); err != nil {
		if !uploads.WriteError(w, err) {
			jsonutil.BadRequest(w, err.Error())
		}
		return
	}
	kind := strings.TrimSpace(r.FormValue("kind"))
	if kind == "" {
		kind = "other"
	}
	if !models.IsValidDocumentKind(kind) {
		jsonutil.ValidationError(w, map[string]string{"kind": "Kind must be one of: " + strings.Join(models.DocumentKinds, ", ") + "."})
		return
	}
	file, header, err := uploads.FormFile(r, "file")
	if err != nil {
		if !uploads.WriteError(w, err) {
			jsonutil.BadRequest(w, err.Error())
		}
		return
	}
	defer file.Close()

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.logger, "document upload")
	defer cancel()
	c, ok := h.own(ctx, w, r)
	if !ok {
		return
	}
	if !c.IsOpen() {
		jsonutil.Conflict(w, "documents cannot be added to a closed application")
		return
	}

	stored, err := uploads.Save(ctx, h.files, uploads.Prefix(brand.ID, uploads.AreaDocuments), file, header, uploads.CaseDocuments(h.maxBytes))
	if err != nil {
		if !uploads.WriteError(w, err) {
			h.errLog.Internal(w, r, "failed to store document", err)
		}
		return
	}
	doc := models.CaseDocument{
		ID:          primitive.NewObjectID(),
		Kind:        kind,
		Name:        stored.Name,
		StoragePath: stored.Path,
		ContentType: stored.ContentType,
		Size:        stored.Size,
		UploadedBy:  su.UserID(),
		UploadedAt:  time.Now().UTC(),
	}
	if _, err := h.cases.AddDocument(ctx, brand.ID, c.ID, doc); err != nil {
		h.discard(ctx, stored.Path)
		if !writeCaseError(w, err) {
			h.errLog.Internal(w, r, "failed to attach document", err)
		}
		return
	}
	jsonutil.Created(w, doc)
}

func (h *Handler) downloadDocument(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.logger, "document download")
	defer cancel()
	c, ok := h.own(ctx, w, r)
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

// deleteDocument is refused once the application is closed.
func (h *Handler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.logger, "document delete")
	defer cancel()
	c, ok := h.own(ctx, w, r)
	if !ok {
		return
	}
	docID, ok := jsonutil.ObjectID(w, "document id", chi.URLParam(r, "docID"))
	if !ok {
		return
	}
	if _, found := c.FindDocument(docID); !found {
		jsonutil.NotFound(w, "document not found")
		return
	}

	doc, err := h.cases.RemoveDocument(ctx, brand.ID, c.ID, docID)
	if err != nil {
		if !writeCaseError(w, err) {
			h.errLog.Internal(w, r, "failed to remove document", err)
		}
		return
	}
	h.discard(ctx, doc.StoragePath)
	jsonutil.NoContent(w)
}

// discard removes a stored object off the request path.
func (h *Handler) discard(ctx context.Context, path string) {
	if path == "" {
		return
	}
	if err := h.files.Delete(context.WithoutCancel(ctx), path); err != nil {
		h.logger.Warn("failed to delete stored document", zap.String("path", path), zap.Error(err))
	}
}
