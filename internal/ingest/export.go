package ingest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// OutputHeader is the column layout of the annotated output file.
var OutputHeader = []string{ColUserID, ColTimestamp, ColMerchantName, ColAmount, "is_suspicious", "flag_reasons"}

// WriteCSV writes the evaluated transactions with their flags.
func WriteCSV(w io.Writer, txs []*domain.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(OutputHeader); err != nil {
		return err
	}
	for _, tx := range txs {
		record := []string{
			strconv.FormatInt(tx.UserID, 10),
			tx.Timestamp.Format(time.RFC3339),
			tx.MerchantName,
			strconv.FormatFloat(tx.Amount, 'f', -1, 64),
			strconv.FormatBool(tx.IsSuspicious),
			tx.FlagReasons(),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteReport writes the report as indented JSON.
func WriteReport(w io.Writer, report *domain.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// WriteCSVFile writes the annotated output to path, creating parent directories.
func WriteCSVFile(path string, txs []*domain.Transaction) error {
	return writeFile(path, func(w io.Writer) error { return WriteCSV(w, txs) })
}

// WriteReportFile writes the report to path, creating parent directories.
func WriteReportFile(path string, report *domain.Report) error {
	return writeFile(path, func(w io.Writer) error { return WriteReport(w, report) })
}

func writeFile(path string, write func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
