package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"smc-systemv1/internal/model"
)

// LoadCandleFile reads a candle series from a .json array of candles or a
// .csv with a time,open,high,low,close[,volume] layout. Rows are sorted by
// the file; validation is left to the analysis pass.
func LoadCandleFile(path string) ([]model.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		var out []model.Candle
		if err := json.NewDecoder(f).Decode(&out); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return out, nil
	case ".csv":
		return ReadCSV(f)
	default:
		return nil, fmt.Errorf("unsupported candle file %q (want .json or .csv)", path)
	}
}

// ReadCSV parses candle rows. A first row whose time column is not a
// timestamp is treated as a header.
func ReadCSV(r io.Reader) ([]model.Candle, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	var out []model.Candle
	for i, row := range rows {
		if len(row) < 5 {
			return nil, fmt.Errorf("csv line %d: want at least 5 columns, got %d", i+1, len(row))
		}
		ts, err := parseTime(row[0])
		if err != nil {
			if i == 0 {
				continue
			}
			return nil, fmt.Errorf("csv line %d: %w", i+1, err)
		}
		c := model.Candle{Time: ts}
		fields := []*float64{&c.Open, &c.High, &c.Low, &c.Close}
		if len(row) > 5 {
			fields = append(fields, &c.Volume)
		}
		for j, dst := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[j+1]), 64)
			if err != nil {
				return nil, fmt.Errorf("csv line %d column %d: %w", i+1, j+2, err)
			}
			*dst = v
		}
		out = append(out, c)
	}
	return out, nil
}

// parseTime accepts epoch seconds, epoch milliseconds or RFC 3339.
func parseTime(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 1e11 {
			return n * 1000, nil
		}
		return n, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("bad time %q", s)
	}
	return t.UnixMilli(), nil
}
