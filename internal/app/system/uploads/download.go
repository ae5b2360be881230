package uploads

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/waffle/pantry/storage"
)

// DefaultDownloadTTL is how long presigned download links stay valid.
const DefaultDownloadTTL = 15 * time.Minute

// Download sends a stored object to the client. Local storage streams the
// file; remote storage answers 302 with a presigned URL.
func Download(ctx context.Context, w http.ResponseWriter, r *http.Request, store Store, objectPath, filename string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultDownloadTTL
	}
	disposition := ContentDisposition(filename)

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

	if local, ok := store.(*storage.Local); ok {
		fullPath, err := local.GetFullPath(objectPath)
		if err != nil {
			return err
		}
		w.Header().Set("Content-Disposition", disposition)
		http.ServeFile(w, r, fullPath)
		return nil
	}

	signed, err := store.PresignedURL(ctx, objectPath, &storage.PresignOptions{
		Expires:            ttl,
		ContentDisposition: disposition,
	})
	if err != nil {
		return err
	}
	http.Redirect(w, r, signed, http.StatusFound)
	return nil
}

// ContentDisposition builds an attachment header with a quoted-safe name.
func ContentDisposition(filename string) string {
	name := strings.Map(func(r rune) rune {
		if r == '"' || r == '\\' || r < 0x20 || r == 0x7f {
			return '_'
		}
		return r
	}, strings.TrimSpace(filename))
	if name == "" {
		name = "download"
	}
	return `attachment; filename="` + name + `"`
}
