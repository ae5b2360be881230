// Package uploads stores user files in object storage and serves them back.
//
// Objects live under brands/<brand id>/<area>/YYYY/MM/<random><ext>, so
// a URL can be traced back to the brand that owns it.
package uploads

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/dalemusser/visadesk/internal/app/system/jsonutil"
	"github.com/dalemusser/waffle/pantry/storage"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Store is the part of storage.Store visadesk relies on.
type Store interface {
	Put(ctx context.Context, path string, r io.Reader, opts *storage.PutOptions) error
	Delete(ctx context.Context, path string) error
	URL(path string) string
	PresignedURL(ctx context.Context, path string, opts *storage.PresignOptions) (string, error)
}

// Areas group objects by feature.
const (
	AreaContent   = "cms"
	AreaLOA       = "loa"
	AreaDocuments = "documents"
)

var (
	ErrTooLarge        = errors.New("file too large")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrNoFile          = errors.New("file is required")
)

const (
	typePDF  = "application/pdf"
	typePNG  = "image/png"
	typeJPEG = "image/jpeg"
	typeWebP = "image/webp"
	typeGIF  = "image/gif"
)

var extByType = map[string]string{
	typePDF:  ".pdf",
	typePNG:  ".png",
	typeJPEG: ".jpg",
	typeWebP: ".webp",
	typeGIF:  ".gif",
}

// Policy says which sniffed types an upload may have and how big it may be.
type Policy struct {
	MaxBytes int64
	Allowed  []string
}

// PDFOnly is the LOA policy.
func PDFOnly(maxBytes int64) Policy {
	return Policy{MaxBytes: maxBytes, Allowed: []string{typePDF}}
}

// ContentMedia covers raster images and PDFs placed in CMS pages. SVG is
// refused because it can carry script.
func ContentMedia(maxBytes int64) Policy {
	return Policy{MaxBytes: maxBytes, Allowed: []string{typePNG, typeJPEG, typeWebP, typeGIF, typePDF}}
}

// CaseDocuments covers scans and photos attached to applications.
func CaseDocuments(maxBytes int64) Policy {
	return Policy{MaxBytes: maxBytes, Allowed: []string{typePDF, typePNG, typeJPEG}}
}

func (p Policy) allows(ct string) bool {
	for _, a := range p.Allowed {
		if a == ct {
			return true
		}
	}
	return false
}

// Stored describes an object written by Save.
type Stored struct {
	Path        string
	URL         string
	ContentType string
	Size        int64
	Name        string // original file name, base only
}

// Prefix returns the storage prefix for a brand's area.
func Prefix(brandID primitive.ObjectID, area string) string {
	return "brands/" + brandID.Hex() + "/" + area
}

// ParseForm reads a multipart form no larger than maxBytes plus a small
// allowance for the other fields. A body over the limit gives ErrTooLarge.
func ParseForm(w http.ResponseWriter, r *http.Request, maxBytes int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return ErrTooLarge
		}
		return fmt.Errorf("invalid multipart form: %w", err)
	}
	return nil
}

// FormFile returns the named file part, or ErrNoFile.
func FormFile(r *http.Request, field string) (multipart.File, *multipart.FileHeader, error) {
	f, h, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil, ErrNoFile
		}
		return nil, nil, err
	}
	return f, h, nil
}

// Sniff detects the content type from the first bytes of a file.
// PDFs must start with the %PDF- signature.
func Sniff(head []byte, filename string) string {
	if bytes.HasPrefix(head, []byte("%PDF-")) {
		return typePDF
	}
	ct := http.DetectContentType(head)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return ct
}

// Save checks size and type, then writes the file under prefix.
func Save(ctx context.Context, store Store, prefix string, file io.Reader, header *multipart.FileHeader, policy Policy) (Stored, error) {
	if header == nil || file == nil {
		return Stored{}, ErrNoFile
	}
	if policy.MaxBytes > 0 && header.Size > policy.MaxBytes {
		return Stored{}, ErrTooLarge
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Stored{}, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return Stored{}, ErrNoFile
	}

	ct := Sniff(head, header.Filename)
	if !policy.allows(ct) {
		return Stored{}, fmt.Errorf("%w: %s", ErrUnsupportedType, ct)
	}

	key := ObjectPath(prefix, extByType[ct], time.Now())
	body := io.MultiReader(bytes.NewReader(head), file)
	if err := store.Put(ctx, key, body, &storage.PutOptions{ContentType: ct}); err != nil {
		return Stored{}, fmt.Errorf("put %s: %w", key, err)
	}

	return Stored{
		Path:        key,
		URL:         store.URL(key),
		ContentType: ct,
		Size:        header.Size,
		Name:        path.Base(strings.ReplaceAll(header.Filename, "\\", "/")),
	}, nil
}

// ObjectPath builds prefix/YYYY/MM/<uuid><ext>.
func ObjectPath(prefix, ext string, now time.Time) string {
	now = now.UTC()
	return fmt.Sprintf("%s/%04d/%02d/%s%s", strings.TrimSuffix(prefix, "/"), now.Year(), int(now.Month()), uuid.New().String(), ext)
}

// Managed returns a predicate that is true for URLs this store produced
// under prefix.
func Managed(store Store, prefix string) func(string) bool {
	return func(u string) bool {
		_, ok := PathForURL(store, prefix, u)
		return ok
	}
}

// PathForURL maps a managed URL back to its object path.
func PathForURL(store Store, prefix, u string) (string, bool) {
	base := store.URL("")
	if base == "" || !strings.HasPrefix(u, base) {
		return "", false
	}
	p := strings.TrimPrefix(strings.TrimPrefix(u, base), "/")
	if !strings.HasPrefix(p, strings.TrimSuffix(prefix, "/")+"/") || strings.Contains(p, "..") {
		return "", false
	}
	return p, true
}

// WriteError answers the upload sentinel errors with 413, 415 or 400 and
// reports whether it wrote a response. Other errors are left to the caller.
func WriteError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, ErrTooLarge):
		jsonutil.TooLarge(w, err.Error())
	case errors.Is(err, ErrUnsupportedType):
		jsonutil.UnsupportedMediaType(w, err.Error())
	case errors.Is(err, ErrNoFile):
		jsonutil.ValidationError(w, map[string]string{"file": err.Error()})
	default:
		return false
	}
	return true
}

