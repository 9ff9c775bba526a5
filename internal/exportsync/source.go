package exportsync

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is the on-disk capture the bridge reads in place of a live device
// data framework: the full account list plus the selectable transaction set.
type Snapshot struct {
	Accounts     []Account     `json:"accounts"`
	Transactions []Transaction `json:"transactions"`
}

// FileSource loads a JSON snapshot lazily and serves it as a DataSource.
type FileSource struct {
	path string

	once sync.Once
	snap Snapshot
	err  error
}

// NewFileSource wraps the snapshot at path. The file is not touched until
// the first read.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) load() error {
	s.once.Do(func() {
		f, err := os.Open(s.path)
		if err != nil {
			s.err = fmt.Errorf("opening snapshot: %w", err)
			return
		}
		defer f.Close()

		if err := json.NewDecoder(f).Decode(&s.snap); err != nil {
			s.err = fmt.Errorf("decoding snapshot %s: %w", s.path, err)
		}
	})
	return s.err
}

// Accounts implements DataSource.
func (s *FileSource) Accounts(_ context.Context) ([]Account, error) {
	if err := s.load(); err != nil {
		return nil, err
	}
	return s.snap.Accounts, nil
}

// Transactions returns the snapshot's selectable transaction set.
func (s *FileSource) Transactions(_ context.Context) ([]Transaction, error) {
	if err := s.load(); err != nil {
		return nil, err
	}
	return s.snap.Transactions, nil
}

// csv column layout for ReadTransactionsCSV.
var csvHeader = []string{"id", "account_id", "merchant_name", "description", "amount", "indicator", "date"}

// ReadTransactionsCSV parses transactions from a CSV export with the header
// id,account_id,merchant_name,description,amount,indicator,date. Dates are
// RFC 3339 or plain YYYY-MM-DD.
func ReadTransactionsCSV(r io.Reader) ([]Transaction, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}
	if len(header) != len(csvHeader) {
		return nil, fmt.Errorf("unexpected csv header %v", header)
	}
	for i, col := range csvHeader {
		if strings.TrimSpace(strings.ToLower(header[i])) != col {
			return nil, fmt.Errorf("unexpected csv column %q, want %q", header[i], col)
		}
	}

	var txns []Transaction
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv row: %w", err)
		}

		amount, err := decimal.NewFromString(row[4])
		if err != nil {
			return nil, fmt.Errorf("row %q: bad amount: %w", row[0], err)
		}

		indicator := CreditDebitIndicator(strings.ToLower(strings.TrimSpace(row[5])))
		if indicator != Credit && indicator != Debit {
			return nil, fmt.Errorf("row %q: bad indicator %q", row[0], row[5])
		}

		date, err := parseDate(row[6])
		if err != nil {
			return nil, fmt.Errorf("row %q: bad date: %w", row[0], err)
		}

		txns = append(txns, Transaction{
			ID:           row[0],
			AccountID:    row[1],
			MerchantName: row[2],
			Description:  row[3],
			Amount:       amount,
			Indicator:    indicator,
			Date:         date,
		})
	}
	return txns, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
