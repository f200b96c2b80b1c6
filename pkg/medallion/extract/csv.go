package extract

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/cognicore/medallion/pkg/medallion/table"
)

// ReadCSV parses delimited text with a header row. Rows whose field count
// does not match the header are dropped.
func ReadCSV(r io.Reader) (*table.Batch, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return table.New(), nil
	}
	if err != nil {
		return nil, err
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	b := table.New(header...)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) != len(header) {
			continue
		}
		row := make(table.Row, len(header))
		for i, col := range header {
			row[col] = table.ParseScalar(rec[i])
		}
		b.Rows = append(b.Rows, row)
	}
	return b, nil
}

// TextToBatch finds the first occurrence of headerToken in unstructured text
// and parses everything from there on as CSV. A missing token yields an
// empty batch.
func TextToBatch(text, headerToken string) (*table.Batch, error) {
	idx := strings.Index(text, headerToken)
	if idx < 0 {
		return table.New(), nil
	}
	return ReadCSV(strings.NewReader(text[idx:]))
}
