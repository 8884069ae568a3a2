package storage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestUploadsSaveAndRemove(t *testing.T) {
	t.Parallel()

	u, err := NewUploads(filepath.Join(t.TempDir(), "nested", "uploads"))
	if err != nil {
		t.Fatalf("NewUploads: %v", err)
	}

	tf, err := u.Save("../../etc/report 2024.pdf", strings.NewReader("%PDF-1.4 body"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Dir(tf.Path) != u.Dir() {
		t.Errorf("file escaped upload dir: %s", tf.Path)
	}
	if !strings.HasSuffix(tf.Path, "_report_2024.pdf") || tf.Name != "report_2024.pdf" {
		t.Errorf("path = %s, name = %s", tf.Path, tf.Name)
	}
	if tf.Size != int64(len("%PDF-1.4 body")) {
		t.Errorf("size = %d", tf.Size)
	}

	if err := tf.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(tf.Path); !os.IsNotExist(err) {
		t.Errorf("file still present after Remove: %v", err)
	}
	if err := tf.Remove(); err != nil {
		t.Errorf("second Remove: %v", err)
	}
}

func TestUploadsSaveEmptyName(t *testing.T) {
	t.Parallel()

	u, err := NewUploads(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"", "   ", "\t"} {
		if _, err := u.Save(name, strings.NewReader("x")); !errors.Is(err, ErrEmptyName) {
			t.Errorf("Save(%q) = %v, want ErrEmptyName", name, err)
		}
	}
}

func TestUploadsSaveNonASCIIName(t *testing.T) {
	t.Parallel()

	u, err := NewUploads(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	tests := map[string]string{
		"報告書.pdf":     "報告書.pdf",
		"отчёт 1.pdf": "отчёт_1.pdf",
		"報告書":         "報告書",
		"..":          "document.pdf",
		"/":           "document.pdf",
		"★☆":          "document.pdf",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			tf, err := u.Save(in, strings.NewReader("%PDF"))
			if err != nil {
				t.Fatalf("Save(%q): %v", in, err)
			}
			defer tf.Remove()
			if tf.Name != want {
				t.Errorf("name = %q, want %q", tf.Name, want)
			}
			if filepath.Dir(tf.Path) != u.Dir() || !strings.HasSuffix(tf.Path, "_"+want) {
				t.Errorf("path = %s", tf.Path)
			}
		})
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestUploadsSaveLeavesNothingOnError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	u, err := NewUploads(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := u.Save("doc.pdf", failingReader{}); err == nil {
		t.Fatal("expected error")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("left %d files behind", len(entries))
	}
}

func TestSanitizeName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"doc.pdf":             "doc.pdf",
		`C:\Users\me\doc.pdf`: "doc.pdf",
		"a/b/../c.pdf":        "c.pdf",
		".hidden.pdf":         "hidden.pdf",
		"weird$name!.pdf":     "weirdname.pdf",
		"...":                 "",
		"報告書.pdf":             "報告書.pdf",
		"Überblick.pdf":       "Überblick.pdf",
		"★.pdf":               "pdf",
	}
	for in, want := range tests {
		if got := SanitizeName(in); got != want {
			t.Errorf("SanitizeName(%q) = %q, want %q", in, got, want)
		}
	}

	long := strings.Repeat("文", 200) + ".pdf"
	got := SanitizeName(long)
	if n := utf8.RuneCountInString(got); n != 128 {
		t.Errorf("long name kept %d runes, want 128", n)
	}
	if !utf8.ValidString(got) || !strings.HasSuffix(got, ".pdf") {
		t.Errorf("long name truncated badly: %q", got)
	}
}

func TestCleanupStale(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	u, err := NewUploads(dir)
	if err != nil {
		t.Fatal(err)
	}
	old, _ := u.Save("old.pdf", strings.NewReader("x"))
	fresh, _ := u.Save("fresh.pdf", strings.NewReader("x"))
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(old.Path, past, past); err != nil {
		t.Fatal(err)
	}

	if n := u.CleanupStale(time.Hour); n != 1 {
		t.Errorf("removed %d files, want 1", n)
	}
	if _, err := os.Stat(old.Path); !os.IsNotExist(err) {
		t.Error("stale file survived")
	}
	if _, err := os.Stat(fresh.Path); err != nil {
		t.Errorf("fresh file removed: %v", err)
	}
}

func TestFetcherHTTP(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/docs/big.pdf":
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		case "/docs/small.pdf":
			_, _ = w.Write([]byte("%PDF-1.4"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	u, err := NewUploads(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	f := NewFetcher(u, FetcherOptions{MaxBytes: 32, HTTPClient: srv.Client()})

	tf, err := f.Fetch(context.Background(), srv.URL+"/docs/small.pdf#page=2")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer tf.Remove()
	if tf.Name != "small.pdf" || tf.Size != 8 {
		t.Errorf("fetched %+v", tf)
	}

	if _, err := f.Fetch(context.Background(), srv.URL+"/docs/big.pdf"); !errors.Is(err, ErrTooLarge) {
		t.Errorf("big download = %v, want ErrTooLarge", err)
	}
	if _, err := f.Fetch(context.Background(), srv.URL+"/missing.pdf"); err == nil {
		t.Error("expected error for 404")
	}
	entries, _ := os.ReadDir(u.Dir())
	if len(entries) != 1 {
		t.Errorf("upload dir has %d files, want only the successful download", len(entries))
	}
}

func TestFetcherLocalRefs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := filepath.Join(dir, "local.pdf")
	if err := os.WriteFile(p, []byte("%PDF"), 0o644); err != nil {
		t.Fatal(err)
	}
	u, _ := NewUploads(filepath.Join(dir, "up"))

	if _, err := NewFetcher(u, FetcherOptions{}).Fetch(context.Background(), p); !errors.Is(err, ErrUnsupportedRef) {
		t.Errorf("local ref without AllowLocal = %v", err)
	}

	f := NewFetcher(u, FetcherOptions{AllowLocal: true})
	for _, ref := range []string{p, "file://" + p} {
		tf, err := f.Fetch(context.Background(), ref)
		if err != nil {
			t.Fatalf("Fetch(%s): %v", ref, err)
		}
		if err := tf.Remove(); err != nil {
			t.Fatal(err)
		}
		if _, err := os.Stat(p); err != nil {
			t.Errorf("caller-owned file was deleted: %v", err)
		}
	}
	if _, err := f.Fetch(context.Background(), "ftp://host/doc.pdf"); !errors.Is(err, ErrUnsupportedRef) {
		t.Errorf("ftp ref = %v", err)
	}
}

func TestParseS3URL(t *testing.T) {
	t.Parallel()

	bucket, key, err := ParseS3URL("s3://bucket/path/to/doc.pdf")
	if err != nil || bucket != "bucket" || key != "path/to/doc.pdf" {
		t.Errorf("got %q %q %v", bucket, key, err)
	}
	for _, bad := range []string{"s3://bucket", "s3:///key", "s3://bucket/"} {
		if _, _, err := ParseS3URL(bad); err == nil {
			t.Errorf("ParseS3URL(%q) should fail", bad)
		}
	}
}
