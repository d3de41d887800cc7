package s3blob

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/polymind/polymind/internal/domain"
)

// archivePageSize bounds how many trades are pulled per store round trip.
const archivePageSize = 5000

// TradeArchiveStore is the slice of the trade store the archiver needs:
// cursor-paged reads of aged trades and their eventual deletion. Paging
// keys on (block, log_index) because every fill in a block carries the
// block timestamp, so a time-only bound cannot split a block exactly.
type TradeArchiveStore interface {
	ListBefore(ctx context.Context, cutoff time.Time, after domain.IndexCursor, limit int) ([]domain.Trade, error)
	DeleteBefore(ctx context.Context, cutoff time.Time, upTo domain.IndexCursor) (int64, error)
}

// Archiver implements domain.Archiver by exporting aged trades to CSV in
// object storage and then deleting them from the primary store. Deletion
// only happens after every page has been uploaded.
type Archiver struct {
	writer domain.BlobWriter
	trades TradeArchiveStore
}

// NewArchiver creates an Archiver.
func NewArchiver(writer domain.BlobWriter, trades TradeArchiveStore) *Archiver {
	return &Archiver{
		writer: writer,
		trades: trades,
	}
}

// ArchiveTrades exports every trade older than the cutoff to
// archive/trades/YYYY-MM/part-NNNN.csv and removes the exported rows. It
// returns how many trades were archived.
func (a *Archiver) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	var cursor domain.IndexCursor
	part := 0

	for {
		trades, err := a.trades.ListBefore(ctx, before, cursor, archivePageSize)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive trades query: %w", err)
		}
		if len(trades) == 0 {
			break
		}

		buf, err := marshalTradeCSV(trades)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive trades encode: %w", err)
		}

		path := archivePath(before, part)
		if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "text/csv"); err != nil {
			return total, fmt.Errorf("s3blob: archive trades upload %s: %w", path, err)
		}

		// Delete exactly the uploaded page. A failure mid-run never drops
		// rows that were not uploaded yet.
		last := trades[len(trades)-1]
		cursor = domain.IndexCursor{Block: last.Block, LogIndex: last.LogIndex}
		deleted, err := a.trades.DeleteBefore(ctx, before, cursor)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive trades delete: %w", err)
		}
		total += deleted
		part++

		if len(trades) < archivePageSize {
			break
		}
	}

	return total, nil
}

// archivePath partitions archive files by the cutoff's year-month.
func archivePath(before time.Time, part int) string {
	return fmt.Sprintf("archive/trades/%s/part-%04d.csv", before.Format("2006-01"), part)
}

var tradeCSVHeader = []string{
	"tx_hash", "log_index", "block", "order_hash", "maker", "taker",
	"token_id", "condition_id", "outcome", "side", "price", "size",
	"fee_units", "timestamp",
}

func marshalTradeCSV(trades []domain.Trade) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(tradeCSVHeader); err != nil {
		return nil, err
	}
	for _, t := range trades {
		record := []string{
			t.TxHash,
			strconv.FormatUint(uint64(t.LogIndex), 10),
			strconv.FormatUint(t.Block, 10),
			t.OrderHash,
			t.Maker,
			t.Taker,
			t.TokenID,
			t.ConditionID,
			strconv.Itoa(t.Outcome),
			string(t.Side),
			strconv.FormatFloat(t.Price(), 'f', 6, 64),
			strconv.FormatFloat(t.Size(), 'f', 6, 64),
			strconv.FormatInt(t.FeeUnits, 10),
			t.Timestamp.UTC().Format(time.RFC3339Nano),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	return buf.Bytes(), w.Error()
}

// Compile-time interface check.
var _ domain.Archiver = (*Archiver)(nil)
