package uploads

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/waffle/pantry/storage"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeStore struct {
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeStore) Put(_ context.Context, p string, r io.Reader, opts *storage.PutOptions) error {
	if f.putErr != nil {
		return f.putErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.objects[p] = b
	if opts != nil {
		f.types[p] = opts.ContentType
	}
	return nil
}

func (f *fakeStore) Delete(_ context.Context, p string) error {
	delete(f.objects, p)
	return nil
}

func (f *fakeStore) URL(p string) string { return "https://cdn.test/" + p }

func (f *fakeStore) PresignedURL(_ context.Context, p string, opts *storage.PresignOptions) (string, error) {
	return "https://cdn.test/" + p + "?exp=" + opts.Expires.String(), nil
}

var pdfBody = []byte("%PDF-1.4\n1 0 obj<<>>endobj\n%%EOF\n")
var pngBody = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func TestSniff(t *testing.T) {
	tests := []struct {
		name     string
		head     []byte
		filename string
		want     string
	}{
		{"pdf", pdfBody, "a.pdf", typePDF},
		{"pdf wrong extension", pdfBody, "a.png", typePDF},
		{"png", pngBody, "a.png", typePNG},
		{"svg is plain xml", []byte(`<?xml version="1.0"?><svg></svg>`), "logo.svg", "text/xml"},
		{"text named pdf", []byte("hello world"), "a.pdf", "text/plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sniff(tt.head, tt.filename); got != tt.want {
				t.Errorf("Sniff() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSave(t *testing.T) {
	brand := primitive.NewObjectID()
	prefix := Prefix(brand, AreaLOA)

	t.Run("stores pdf under prefix", func(t *testing.T) {
		fs := newFakeStore()
		hdr := &multipart.FileHeader{Filename: `C:\scans\letter.pdf`, Size: int64(len(pdfBody))}
		got, err := Save(context.Background(), fs, prefix, bytes.NewReader(pdfBody), hdr, PDFOnly(1<<20))
		if err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if !strings.HasPrefix(got.Path, prefix+"/") || !strings.HasSuffix(got.Path, ".pdf") {
			t.Errorf("Path = %q", got.Path)
		}
		if got.URL != fs.URL(got.Path) {
			t.Errorf("URL = %q", got.URL)
		}
		if got.Name != "letter.pdf" {
			t.Errorf("Name = %q, want letter.pdf", got.Name)
		}
		if !bytes.Equal(fs.objects[got.Path], pdfBody) {
			t.Error("stored body differs from upload")
		}
		if fs.types[got.Path] != typePDF {
			t.Errorf("content type = %q", fs.types[got.Path])
		}
	})

	t.Run("rejects oversized", func(t *testing.T) {
		hdr := &multipart.FileHeader{Filename: "a.pdf", Size: 2 << 20}
		_, err := Save(context.Background(), newFakeStore(), prefix, bytes.NewReader(pdfBody), hdr, PDFOnly(1<<20))
		if !errors.Is(err, ErrTooLarge) {
			t.Errorf("err = %v, want ErrTooLarge", err)
		}
	})

	t.Run("rejects disallowed type", func(t *testing.T) {
		hdr := &multipart.FileHeader{Filename: "a.png", Size: int64(len(pngBody))}
		_, err := Save(context.Background(), newFakeStore(), prefix, bytes.NewReader(pngBody), hdr, PDFOnly(1<<20))
		if !errors.Is(err, ErrUnsupportedType) {
			t.Errorf("err = %v, want ErrUnsupportedType", err)
		}
	})

	t.Run("content media refuses svg", func(t *testing.T) {
		svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg"><script>alert(1)</script></svg>`)
		hdr := &multipart.FileHeader{Filename: "logo.svg", Size: int64(len(svg))}
		_, err := Save(context.Background(), newFakeStore(), prefix, bytes.NewReader(svg), hdr, ContentMedia(1<<20))
		if !errors.Is(err, ErrUnsupportedType) {
			t.Errorf("err = %v, want ErrUnsupportedType", err)
		}
	})

	t.Run("empty file", func(t *testing.T) {
		hdr := &multipart.FileHeader{Filename: "a.pdf"}
		_, err := Save(context.Background(), newFakeStore(), prefix, bytes.NewReader(nil), hdr, PDFOnly(1<<20))
		if !errors.Is(err, ErrNoFile) {
			t.Errorf("err = %v, want ErrNoFile", err)
		}
	})

	t.Run("put failure", func(t *testing.T) {
		fs := newFakeStore()
		fs.putErr = errors.New("bucket gone")
		hdr := &multipart.FileHeader{Filename: "a.pdf", Size: int64(len(pdfBody))}
		if _, err := Save(context.Background(), fs, prefix, bytes.NewReader(pdfBody), hdr, PDFOnly(1<<20)); err == nil {
			t.Error("expected error")
		}
	})
}

func TestObjectPath(t *testing.T) {
	now := time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)
	p := ObjectPath("brands/x/cms/", ".png", now)
	if !strings.HasPrefix(p, "brands/x/cms/2024/03/") || !strings.HasSuffix(p, ".png") {
		t.Errorf("ObjectPath() = %q", p)
	}
	if len(p) != len("brands/x/cms/2024/03/")+36+len(".png") {
		t.Errorf("unexpected length for %q", p)
	}
	if q := ObjectPath("brands/x/cms/", ".png", now); q == p {
		t.Errorf("ObjectPath() repeated %q", p)
	}
}

func TestPathForURL(t *testing.T) {
	fs := newFakeStore()
	brand := primitive.NewObjectID()
	other := primitive.NewObjectID()
	prefix := Prefix(brand, AreaContent)

	tests := []struct {
		name string
		url  string
		ok   bool
	}{
		{"managed", "https://cdn.test/" + prefix + "/2024/01/abcd1234.png", true},
		{"other brand", "https://cdn.test/" + Prefix(other, AreaContent) + "/2024/01/a.png", false},
		{"other area", "https://cdn.test/" + Prefix(brand, AreaLOA) + "/2024/01/a.pdf", false},
		{"foreign host", "https://example.com/" + prefix + "/a.png", false},
		{"traversal", "https://cdn.test/" + prefix + "/../../x.png", false},
	}
	managed := Managed(fs, prefix)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := PathForURL(fs, prefix, tt.url)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && fs.URL(p) != tt.url {
				t.Errorf("round trip = %q", fs.URL(p))
			}
			if managed(tt.url) != tt.ok {
				t.Errorf("Managed() disagrees for %q", tt.url)
			}
		})
	}
}

func TestContentDisposition(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"letter.pdf", `attachment; filename="letter.pdf"`},
		{`a"b.pdf`, `attachment; filename="a_b.pdf"`},
		{"  ", `attachment; filename="download"`},
	}
	for _, tt := range tests {
		if got := ContentDisposition(tt.in); got != tt.want {
			t.Errorf("ContentDisposition(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDownload_Presigned(t *testing.T) {
	fs := newFakeStore()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/download", nil)

	if err := Download(context.Background(), rec, req, fs, "brands/x/loa/a.pdf", "a.pdf", 0); err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	want := "https://cdn.test/brands/x/loa/a.pdf?exp=" + DefaultDownloadTTL.String()
	if loc := rec.Header().Get("Location"); loc != want {
		t.Errorf("Location = %q, want %q", loc, want)
	}
}

func TestParseFormAndFormFile(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("title", "x")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()

	if err := ParseForm(rec, req, 1<<20); err != nil {
		t.Fatalf("ParseForm() error = %v", err)
	}
	if _, _, err := FormFile(req, "file"); !errors.Is(err, ErrNoFile) {
		t.Errorf("FormFile() err = %v, want ErrNoFile", err)
	}
}
