package s3blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/polymind/polymind/internal/domain"
)

type fakeWriter struct {
	puts   map[string]string
	putErr error
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{puts: make(map[string]string)}
}

func (w *fakeWriter) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	if w.putErr != nil {
		return w.putErr
	}
	if contentType != "text/csv" {
		return fmt.Errorf("unexpected content type %q", contentType)
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.puts[path] = string(b)
	return nil
}

// fakeArchiveStore keeps trades in (block, log_index) order and honors the
// cursor-paged ListBefore / DeleteBefore contract.
type fakeArchiveStore struct {
	trades []domain.Trade
}

func afterCursor(t domain.Trade, c domain.IndexCursor) bool {
	return t.Block > c.Block || (t.Block == c.Block && t.LogIndex > c.LogIndex)
}

func (s *fakeArchiveStore) ListBefore(ctx context.Context, cutoff time.Time, after domain.IndexCursor, limit int) ([]domain.Trade, error) {
	var out []domain.Trade
	for _, t := range s.trades {
		if t.Timestamp.Before(cutoff) && afterCursor(t, after) {
			out = append(out, t)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *fakeArchiveStore) DeleteBefore(ctx context.Context, cutoff time.Time, upTo domain.IndexCursor) (int64, error) {
	var kept []domain.Trade
	var deleted int64
	for _, t := range s.trades {
		if t.Timestamp.Before(cutoff) && !afterCursor(t, upTo) {
			deleted++
		} else {
			kept = append(kept, t)
		}
	}
	s.trades = kept
	return deleted, nil
}

func archiveTrade(i int, ts time.Time) domain.Trade {
	return domain.Trade{
		TxHash:      fmt.Sprintf("0xtx%04d", i),
		LogIndex:    uint(i),
		Block:       uint64(1000 + i),
		Maker:       "0xaaaa",
		Taker:       "0xbbbb",
		TokenID:     "111",
		ConditionID: "0xc1",
		Side:        domain.SideBuy,
		PriceTicks:  600_000,
		SizeUnits:   1_000_000,
		Timestamp:   ts,
	}
}

func TestArchiveTrades(t *testing.T) {
	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeArchiveStore{trades: []domain.Trade{
		archiveTrade(1, cutoff.Add(-48*time.Hour)),
		archiveTrade(2, cutoff.Add(-24*time.Hour)),
		archiveTrade(3, cutoff.Add(24*time.Hour)), // inside retention, stays
	}}
	writer := newFakeWriter()

	archived, err := NewArchiver(writer, store).ArchiveTrades(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ArchiveTrades: %v", err)
	}
	if archived != 2 {
		t.Errorf("archived = %d, want 2", archived)
	}
	if len(store.trades) != 1 || store.trades[0].TxHash != "0xtx0003" {
		t.Errorf("remaining = %v, want only the recent trade", store.trades)
	}

	body, ok := writer.puts["archive/trades/2026-08/part-0000.csv"]
	if !ok {
		t.Fatalf("expected part file missing, got %v", keys(writer.puts))
	}
	lines := strings.Split(strings.TrimSpace(body), "\n")
	if len(lines) != 3 {
		t.Fatalf("csv lines = %d, want header plus 2 rows", len(lines))
	}
	if !strings.HasPrefix(lines[0], "tx_hash,log_index,block") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "0xtx0001") || !strings.Contains(lines[1], "0.600000") {
		t.Errorf("row = %q, want tx hash and price", lines[1])
	}
}

func TestArchiveTradesSharedTimestampAcrossPages(t *testing.T) {
	// Every fill in a block carries the block timestamp, so an aged backlog
	// can span a page boundary with a single timestamp. No row may be
	// deleted unless its page was uploaded.
	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	ts := cutoff.Add(-time.Hour)

	n := archivePageSize + 1
	store := &fakeArchiveStore{}
	for i := 0; i < n; i++ {
		tr := archiveTrade(i, ts)
		tr.Block = 1000
		tr.LogIndex = uint(i)
		store.trades = append(store.trades, tr)
	}
	writer := newFakeWriter()

	archived, err := NewArchiver(writer, store).ArchiveTrades(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ArchiveTrades: %v", err)
	}
	if archived != int64(n) {
		t.Errorf("archived = %d, want %d", archived, n)
	}
	if len(store.trades) != 0 {
		t.Errorf("remaining = %d, want 0", len(store.trades))
	}

	uploaded := 0
	for _, body := range writer.puts {
		uploaded += len(strings.Split(strings.TrimSpace(body), "\n")) - 1 // minus header
	}
	if uploaded != n {
		t.Errorf("uploaded rows = %d, want %d: every deleted row must be uploaded", uploaded, n)
	}
	if len(writer.puts) != 2 {
		t.Errorf("part files = %v, want 2", keys(writer.puts))
	}
}

func TestArchiveTradesEmpty(t *testing.T) {
	writer := newFakeWriter()
	archived, err := NewArchiver(writer, &fakeArchiveStore{}).ArchiveTrades(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ArchiveTrades: %v", err)
	}
	if archived != 0 {
		t.Errorf("archived = %d, want 0", archived)
	}
	if len(writer.puts) != 0 {
		t.Errorf("uploads = %d, want none", len(writer.puts))
	}
}

func TestArchiveTradesUploadFailureKeepsRows(t *testing.T) {
	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeArchiveStore{trades: []domain.Trade{
		archiveTrade(1, cutoff.Add(-time.Hour)),
	}}
	writer := newFakeWriter()
	writer.putErr = errors.New("bucket unavailable")

	archived, err := NewArchiver(writer, store).ArchiveTrades(context.Background(), cutoff)
	if err == nil {
		t.Fatal("ArchiveTrades succeeded despite upload failure")
	}
	if archived != 0 {
		t.Errorf("archived = %d, want 0", archived)
	}
	if len(store.trades) != 1 {
		t.Error("rows deleted without a successful upload")
	}
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
