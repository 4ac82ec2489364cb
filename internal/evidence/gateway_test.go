package evidence

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"rental_inspections_backend/platform/apperr"
	"rental_inspections_backend/platform/logger"
)

type testConfig struct{}

func (testConfig) GetEvidenceBucket() string         { return "evidence" }
func (testConfig) GetEvidencePublicBaseURL() string  { return "https://cdn.example.com/" }
func (testConfig) GetEvidenceUploadConcurrency() int { return 2 }
func (testConfig) GetEvidenceMaxFileSize() int64     { return 16 }

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	failOn  string
	removed []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (s *fakeStore) Put(_ context.Context, _, folder, fileName, _ string, reader io.Reader, _ int64) (string, error) {
	if fileName == s.failOn {
		return "", errors.New("storage unavailable")
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	key := folder + "/" + fileName
	s.mu.Lock()
	s.objects[key] = data
	s.mu.Unlock()
	return key, nil
}

func (s *fakeStore) Remove(_ context.Context, _, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.removed = append(s.removed, key)
	return nil
}

func file(name, body string) File {
	return File{Name: name, ContentType: "image/jpeg", Size: int64(len(body)), Content: strings.NewReader(body)}
}

func TestUploadAllReturnsURLsInOrder(t *testing.T) {
	store := newFakeStore()
	g := NewGateway(store, testConfig{}, logger.New("test"))

	urls, err := g.UploadAll(context.Background(), []File{file("a.jpg", "a"), file("b.jpg", "b"), file("c.jpg", "c")}, "inspections/1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{
		"https://cdn.example.com/evidence/inspections/1/a.jpg",
		"https://cdn.example.com/evidence/inspections/1/b.jpg",
		"https://cdn.example.com/evidence/inspections/1/c.jpg",
	}
	for i := range want {
		if urls[i] != want[i] {
			t.Fatalf("url %d: expected %s, got %s", i, want[i], urls[i])
		}
	}
	if len(store.objects) != 3 {
		t.Fatalf("expected 3 stored objects, got %d", len(store.objects))
	}
}

func TestUploadAllRollsBackOnFailure(t *testing.T) {
	store := newFakeStore()
	store.failOn = "bad.jpg"
	g := NewGateway(store, testConfig{}, logger.New("test"))

	_, err := g.UploadAll(context.Background(), []File{file("a.jpg", "a"), file("bad.jpg", "x"), file("c.jpg", "c")}, "f")
	if !apperr.Is(err, apperr.KindUpload) {
		t.Fatalf("expected upload error, got %v", err)
	}
	if len(store.objects) != 0 {
		t.Fatalf("expected rollback to remove uploaded objects, %d left", len(store.objects))
	}
}

func TestUploadAllEmpty(t *testing.T) {
	g := NewGateway(newFakeStore(), testConfig{}, logger.New("test"))
	urls, err := g.UploadAll(context.Background(), nil, "f")
	if err != nil || len(urls) != 0 {
		t.Fatalf("expected no urls and no error, got %v, %v", urls, err)
	}
}

func TestUploadWithoutStore(t *testing.T) {
	g := NewGateway(nil, testConfig{}, logger.New("test"))
	if _, err := g.Upload(context.Background(), file("a.jpg", "a"), "f"); !apperr.Is(err, apperr.KindUpload) {
		t.Fatalf("expected upload error, got %v", err)
	}
}

func TestUploadAllRejectsInvalidFilesBeforeUploading(t *testing.T) {
	tests := []struct {
		name string
		bad  File
	}{
		{"oversized", file("big.jpg", strings.Repeat("x", 17))},
		{"empty", file("empty.jpg", "")},
		{"not an image", File{Name: "notes.pdf", ContentType: "application/pdf", Size: 3, Content: strings.NewReader("pdf")}},
		{"sniffed as text", File{Name: "a.bin", ContentType: "application/octet-stream", Size: 5, Content: strings.NewReader("hello")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			g := NewGateway(store, testConfig{}, logger.New("test"))

			_, err := g.UploadAll(context.Background(), []File{file("a.jpg", "a"), tt.bad}, "f")
			if !apperr.Is(err, apperr.KindValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			var appErr *apperr.Error
			if !errors.As(err, &appErr) {
				t.Fatalf("expected *apperr.Error, got %T", err)
			}
			details, _ := appErr.Details.(map[string]string)
			if _, ok := details[tt.bad.Name]; !ok || len(details) != 1 {
				t.Fatalf("expected one detail for %s, got %v", tt.bad.Name, details)
			}
			if len(store.objects) != 0 {
				t.Fatalf("expected nothing stored, got %d objects", len(store.objects))
			}
		})
	}
}

func TestUploadSniffsGenericContentType(t *testing.T) {
	store := newFakeStore()
	g := NewGateway(store, testConfig{}, logger.New("test"))
	png := "\x89PNG\r\n\x1a\n0000"
	f := File{Name: "p.png", ContentType: "application/octet-stream", Size: int64(len(png)), Content: strings.NewReader(png)}

	if _, err := g.Upload(context.Background(), f, "f"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := string(store.objects["f/p.png"]); got != png {
		t.Fatalf("stored content was not rewound, got %q", got)
	}
}

func TestUploadRejectsNonImage(t *testing.T) {
	g := NewGateway(newFakeStore(), testConfig{}, logger.New("test"))
	f := File{Name: "run.sh", ContentType: "text/x-shellscript", Size: 4, Content: strings.NewReader("ls -")}
	if _, err := g.Upload(context.Background(), f, "f"); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDeleteIgnoresForeignURLs(t *testing.T) {
	store := newFakeStore()
	g := NewGateway(store, testConfig{}, logger.New("test"))

	if err := g.Delete(context.Background(), "https://elsewhere.example.com/evidence/f/a.jpg"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.removed) != 0 {
		t.Fatalf("expected no removal, got %v", store.removed)
	}

	if err := g.Delete(context.Background(), "https://cdn.example.com/evidence/f/a.jpg"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.removed) != 1 || store.removed[0] != "f/a.jpg" {
		t.Fatalf("expected f/a.jpg removed, got %v", store.removed)
	}
}

func TestFirstGPSWithoutExif(t *testing.T) {
	f := File{Name: "a.jpg", Content: bytes.NewReader([]byte("not an image"))}
	if _, ok := FirstGPS([]File{f}); ok {
		t.Fatal("expected no coordinates")
	}
	pos, _ := f.Content.Seek(0, io.SeekCurrent)
	if pos != 0 {
		t.Fatalf("expected content rewound, at %d", pos)
	}
}
