package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/polymind/polymind/internal/domain"
)

type fakeBlobReader struct {
	objects map[string]string
}

func (r *fakeBlobReader) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	body, ok := r.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (r *fakeBlobReader) List(ctx context.Context, prefix string) ([]domain.BlobInfo, error) {
	var infos []domain.BlobInfo
	for path, body := range r.objects {
		if strings.HasPrefix(path, prefix) {
			infos = append(infos, domain.BlobInfo{
				Path:         path,
				Size:         int64(len(body)),
				LastModified: time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
			})
		}
	}
	return infos, nil
}

func TestListArchives(t *testing.T) {
	reader := &fakeBlobReader{objects: map[string]string{
		"archive/trades/2026-07/part-0000.csv": "a",
		"archive/trades/2026-08/part-0000.csv": "bb",
	}}
	h := NewArchiveHandler(reader, discardLogger())

	req := httptest.NewRequest("GET", "/api/archives", nil)
	rec := httptest.NewRecorder()
	h.ListArchives(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Archives []archiveInfo `json:"archives"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Archives) != 2 {
		t.Errorf("archives = %d, want 2", len(resp.Archives))
	}
}

func TestListArchivesByMonth(t *testing.T) {
	reader := &fakeBlobReader{objects: map[string]string{
		"archive/trades/2026-07/part-0000.csv": "a",
		"archive/trades/2026-08/part-0000.csv": "bb",
	}}
	h := NewArchiveHandler(reader, discardLogger())

	req := httptest.NewRequest("GET", "/api/archives?prefix=archive/trades/2026-08/", nil)
	rec := httptest.NewRecorder()
	h.ListArchives(rec, req)

	var resp struct {
		Archives []archiveInfo `json:"archives"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Archives) != 1 || resp.Archives[0].Path != "archive/trades/2026-08/part-0000.csv" {
		t.Errorf("archives = %+v, want only the 2026-08 part", resp.Archives)
	}
}

func TestListArchivesRejectsForeignPrefix(t *testing.T) {
	h := NewArchiveHandler(&fakeBlobReader{}, discardLogger())

	req := httptest.NewRequest("GET", "/api/archives?prefix=secrets/", nil)
	rec := httptest.NewRecorder()
	h.ListArchives(rec, req)

	if rec.Code != 400 {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestDownloadArchive(t *testing.T) {
	const body = "tx_hash,log_index\n0xt1,4\n"
	reader := &fakeBlobReader{objects: map[string]string{
		"archive/trades/2026-08/part-0000.csv": body,
	}}
	h := NewArchiveHandler(reader, discardLogger())

	req := httptest.NewRequest("GET", "/api/archives/archive/trades/2026-08/part-0000.csv", nil)
	req.SetPathValue("path", "archive/trades/2026-08/part-0000.csv")
	rec := httptest.NewRecorder()
	h.DownloadArchive(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/csv" {
		t.Errorf("content type = %q, want text/csv", got)
	}
	if rec.Body.String() != body {
		t.Errorf("body = %q, want the stored csv", rec.Body.String())
	}
}

func TestDownloadArchiveNotFound(t *testing.T) {
	h := NewArchiveHandler(&fakeBlobReader{}, discardLogger())

	req := httptest.NewRequest("GET", "/api/archives/archive/trades/2026-08/part-0000.csv", nil)
	req.SetPathValue("path", "archive/trades/2026-08/part-0000.csv")
	rec := httptest.NewRecorder()
	h.DownloadArchive(rec, req)

	if rec.Code != 404 {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestDownloadArchiveOutsideNamespace(t *testing.T) {
	reader := &fakeBlobReader{objects: map[string]string{
		"internal/creds.txt": "nope",
	}}
	h := NewArchiveHandler(reader, discardLogger())

	req := httptest.NewRequest("GET", "/api/archives/internal/creds.txt", nil)
	req.SetPathValue("path", "internal/creds.txt")
	rec := httptest.NewRecorder()
	h.DownloadArchive(rec, req)

	if rec.Code != 404 {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
