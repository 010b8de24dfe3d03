// Package csvsource reads and writes historical bars as CSV files, so runs
// can replay locally cached data without touching the exchange.
package csvsource

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"backsim/internal/domain"
	"backsim/internal/ports"
)

var header = []string{"timestamp", "symbol", "interval", "open", "high", "low", "close", "volume"}

// Source implements the ports.DataSource interface over a CSV file.
type Source struct {
	path   string
	logger ports.Logger
}

// New creates a CSV-backed data source reading from path.
func New(path string, logger ports.Logger) (*Source, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for CSV data source")
	}
	if path == "" {
		return nil, fmt.Errorf("%w: CSV path is required", ports.ErrConfigurationError)
	}
	return &Source{path: path, logger: logger}, nil
}

// LoadBars reads the file and returns the bars matching the symbol inside
// [start, end], sorted by timestamp.
func (s *Source) LoadBars(ctx context.Context, symbol string, start, end time.Time) ([]*domain.Bar, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file '%s': %w", s.path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file '%s': %w", s.path, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	// Skip the header row when present.
	if records[0][0] == header[0] {
		records = records[1:]
	}

	bars := make([]*domain.Bar, 0, len(records))
	for i, rec := range records {
		bar, err := parseRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("failed to parse CSV row %d in '%s': %w", i+1, s.path, err)
		}
		if bar.Symbol != symbol {
			continue
		}
		if bar.Timestamp.Before(start) || bar.Timestamp.After(end) {
			continue
		}
		bars = append(bars, bar)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })

	s.logger.Info(ctx, "Historical bars loaded from CSV", map[string]interface{}{
		"path":   s.path,
		"symbol": symbol,
		"bars":   len(bars),
	})
	return bars, nil
}

func parseRecord(rec []string) (*domain.Bar, error) {
	if len(rec) != len(header) {
		return nil, fmt.Errorf("expected %d columns, got %d", len(header), len(rec))
	}
	ts, err := time.Parse(time.RFC3339, rec[0])
	if err != nil {
		return nil, fmt.Errorf("parsing timestamp '%s': %w", rec[0], err)
	}
	open, err := strconv.ParseFloat(rec[3], 64)
	if err != nil {
		return nil, fmt.Errorf("parsing open '%s': %w", rec[3], err)
	}
	high, err := strconv.ParseFloat(rec[4], 64)
	if err != nil {
		return nil, fmt.Errorf("parsing high '%s': %w", rec[4], err)
	}
	low, err := strconv.ParseFloat(rec[5], 64)
	if err != nil {
		return nil, fmt.Errorf("parsing low '%s': %w", rec[5], err)
	}
	cls, err := strconv.ParseFloat(rec[6], 64)
	if err != nil {
		return nil, fmt.Errorf("parsing close '%s': %w", rec[6], err)
	}
	vol, err := strconv.ParseFloat(rec[7], 64)
	if err != nil {
		return nil, fmt.Errorf("parsing volume '%s': %w", rec[7], err)
	}
	return &domain.Bar{
		Timestamp: ts,
		Symbol:    rec[1],
		Interval:  rec[2],
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    vol,
	}, nil
}

// WriteBars writes bars to a CSV file, replacing any existing content.
func WriteBars(bars []*domain.Bar, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}

	writer := csv.NewWriter(file)
	writer.Write(header)
	for _, b := range bars {
		writer.Write([]string{
			b.Timestamp.Format(time.RFC3339),
			b.Symbol,
			b.Interval,
			strconv.FormatFloat(b.Open, 'f', -1, 64),
			strconv.FormatFloat(b.High, 'f', -1, 64),
			strconv.FormatFloat(b.Low, 'f', -1, 64),
			strconv.FormatFloat(b.Close, 'f', -1, 64),
			strconv.FormatFloat(b.Volume, 'f', -1, 64),
		})
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		file.Close()
		return fmt.Errorf("writing %s: %w", filename, err)
	}
	// A failed close can mean the OS never flushed the file to disk.
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", filename, err)
	}
	return nil
}
