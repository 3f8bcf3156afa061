// Package ingest loads transaction data sets and writes evaluated output.
package ingest

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

var (
	ErrMissingColumn    = errors.New("missing required column")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	ErrInvalidField     = errors.New("invalid field")
	ErrEmptyInput       = errors.New("empty input")
	ErrUnsupportedFile  = errors.New("unsupported file type")
)

// Required input columns.
const (
	ColUserID       = "userId"
	ColTimestamp    = "timestamp"
	ColMerchantName = "merchantName"
	ColAmount       = "amount"
)

var requiredColumns = []string{ColUserID, ColTimestamp, ColMerchantName, ColAmount}

// timestampLayouts are tried in order. Layouts without a zone parse as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp parses a timestamp in any accepted layout.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}

// LoadCSV reads transactions from CSV with a header row. Columns may appear
// in any order; unknown columns are ignored. Any bad row fails the load.
func LoadCSV(r io.Reader) ([]*domain.Transaction, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrEmptyInput
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}

	var txs []*domain.Transaction
	for row := 2; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}

		field := func(col string) string {
			if i := idx[col]; i < len(record) {
				return strings.TrimSpace(record[i])
			}
			return ""
		}

		tx, err := parseRow(field(ColUserID), field(ColTimestamp), field(ColMerchantName), field(ColAmount))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		txs = append(txs, tx)
	}

	SortByUserTime(txs)
	return txs, nil
}

type jsonRecord struct {
	UserID       json.Number `json:"userId"`
	Timestamp    string      `json:"timestamp"`
	MerchantName string      `json:"merchantName"`
	Amount       json.Number `json:"amount"`
}

// LoadJSON reads a JSON array of transactions.
func LoadJSON(r io.Reader) ([]*domain.Transaction, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var records []jsonRecord
	if err := dec.Decode(&records); err != nil {
		if err == io.EOF {
			return nil, ErrEmptyInput
		}
		return nil, fmt.Errorf("failed to decode transactions: %w", err)
	}

	txs := make([]*domain.Transaction, 0, len(records))
	for i, rec := range records {
		tx, err := parseRow(rec.UserID.String(), rec.Timestamp, rec.MerchantName, rec.Amount.String())
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		txs = append(txs, tx)
	}

	SortByUserTime(txs)
	return txs, nil
}

// LoadFile loads a .csv or .json file.
func LoadFile(path string) ([]*domain.Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return LoadCSV(f)
	case ".json":
		return LoadJSON(f)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, path)
	}
}

func parseRow(userID, ts, merchant, amount string) (*domain.Transaction, error) {
	uid, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: userId %q", ErrInvalidField, userID)
	}
	at, err := ParseTimestamp(ts)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(merchant) == "" {
		return nil, fmt.Errorf("%w: merchantName is required", ErrInvalidField)
	}
	amt, err := strconv.ParseFloat(amount, 64)
	if err != nil || math.IsNaN(amt) || math.IsInf(amt, 0) {
		return nil, fmt.Errorf("%w: amount %q", ErrInvalidField, amount)
	}
	return &domain.Transaction{
		UserID:       uid,
		Timestamp:    at,
		MerchantName: merchant,
		Amount:       amt,
	}, nil
}

// SortByUserTime stably sorts by user, then timestamp. Ties keep input order.
func SortByUserTime(txs []*domain.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if txs[i].UserID != txs[j].UserID {
			return txs[i].UserID < txs[j].UserID
		}
		return txs[i].Timestamp.Before(txs[j].Timestamp)
	})
}
