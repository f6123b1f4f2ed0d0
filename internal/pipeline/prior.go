package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
)

// ReadPriorBalances parses a starting-balance snapshot. Two layouts are
// accepted: a JSON object of subscriber_id to balance, or CSV rows of
// subscriber_id,balance with an optional header row.
func ReadPriorBalances(r io.Reader) (map[string]decimal.Decimal, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read prior balances: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	if data[0] == '{' {
		var out map[string]decimal.Decimal
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("parse prior balances JSON: %w", err)
		}
		return out, nil
	}
	return readPriorCSV(data)
}

func readPriorCSV(data []byte) (map[string]decimal.Decimal, error) {
	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	out := make(map[string]decimal.Decimal)
	for row := 1; ; row++ {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse prior balances CSV: %w", err)
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("prior balances row %d: want subscriber_id,balance", row)
		}

		id := strings.TrimSpace(fields[0])
		bal, err := decimal.NewFromString(strings.TrimSpace(fields[1]))
		if err != nil {
			if row == 1 {
				continue // header
			}
			return nil, fmt.Errorf("prior balances row %d: invalid balance %q", row, fields[1])
		}
		if id == "" {
			return nil, fmt.Errorf("prior balances row %d: empty subscriber_id", row)
		}
		out[id] = bal
	}
	return out, nil
}
