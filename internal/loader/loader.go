// Package loader reads options chains and intraday candles from the CSV
// data lake laid out as one file per date.
package loader

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"levelflow/internal/models"
	"levelflow/logger"
)

const optionsSuffix = "_cme_options.csv"

// candleSuffixes are tried in order per instrument, highest resolution
// first.
var candleSuffixes = []string{
	"_%s_intraday_5m.csv",
	"_%s_intraday_15m.csv",
	"_%s_intraday.csv",
}

// CSVLoader resolves and parses data lake files under a base directory.
// Missing files are not errors: the affected dataset is simply empty.
type CSVLoader struct {
	dir string
	log *logger.Log
}

// NewCSVLoader creates a loader rooted at dir.
func NewCSVLoader(dir string) *CSVLoader {
	return &CSVLoader{dir: dir, log: logger.GetLogger()}
}

// LoadOptions reads the full options chain file for one date. Rows that
// fail to parse are skipped with a warning; an unreadable file is an
// error.
func (l *CSVLoader) LoadOptions(date time.Time) ([]models.OptionContractRecord, error) {
	dateStr := date.Format("2006-01-02")
	path := l.findDataFile(dateStr, dateStr+optionsSuffix)
	if path == "" {
		l.log.WithComponent("loader").WithFields(logger.Fields{
			"date": dateStr,
		}).Debug("no options file for date")
		return nil, nil
	}

	var records []models.OptionContractRecord
	err := l.readCSV(path, func(row map[string]string, line int) {
		rec, err := parseOptionRow(row)
		if err != nil {
			l.log.WithComponent("loader").WithError(err).WithFields(logger.Fields{
				"file": filepath.Base(path),
				"line": line,
			}).Warn("skipping bad options row")
			return
		}
		records = append(records, rec)
	})
	if err != nil {
		return nil, err
	}

	l.log.WithComponent("loader").WithFields(logger.Fields{
		"file": filepath.Base(path),
		"rows": len(records),
	}).Info("options chain loaded")
	return records, nil
}

// LoadCandles reads the intraday session candles for one date and
// instrument, trying resolutions highest first.
func (l *CSVLoader) LoadCandles(date time.Time, instrument string) ([]models.Candle, error) {
	dateStr := date.Format("2006-01-02")
	var path string
	for _, pattern := range candleSuffixes {
		path = l.findDataFile(dateStr, dateStr+fmt.Sprintf(pattern, instrument))
		if path != "" {
			break
		}
	}
	if path == "" {
		l.log.WithComponent("loader").WithFields(logger.Fields{
			"date":       dateStr,
			"instrument": instrument,
		}).Debug("no candle file for date")
		return nil, nil
	}

	var candles []models.Candle
	err := l.readCSV(path, func(row map[string]string, line int) {
		candle, err := parseCandleRow(row)
		if err != nil {
			l.log.WithComponent("loader").WithError(err).WithFields(logger.Fields{
				"file": filepath.Base(path),
				"line": line,
			}).Warn("skipping bad candle row")
			return
		}
		candles = append(candles, candle)
	})
	if err != nil {
		return nil, err
	}

	l.log.WithComponent("loader").WithFields(logger.Fields{
		"file":    filepath.Base(path),
		"candles": len(candles),
	}).Info("session candles loaded")
	return candles, nil
}

// findDataFile returns the full path of name under the lake directory.
// When the exact name is absent it scans the directory for the first file
// carrying both the date and the name's distinguishing stem, which covers
// exports with extra infixes or different casing in their filenames.
func (l *CSVLoader) findDataFile(date, name string) string {
	path := filepath.Join(l.dir, name)
	if _, err := os.Stat(path); err == nil {
		return path
	}

	stem := strings.ToLower(strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(name, date), "_"), ".csv"))
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		n := strings.ToLower(entry.Name())
		if strings.Contains(n, date) && strings.Contains(n, stem) && strings.HasSuffix(n, ".csv") {
			return filepath.Join(l.dir, entry.Name())
		}
	}
	return ""
}

// readCSV streams a header-mapped CSV file row by row.
func (l *CSVLoader) readCSV(path string, handle func(row map[string]string, line int)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("read header of %s: %w", path, err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	line := 1
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s line %d: %w", path, line+1, err)
		}
		line++

		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(fields) {
				row[col] = strings.TrimSpace(fields[i])
			}
		}
		handle(row, line)
	}
}

func parseOptionRow(row map[string]string) (models.OptionContractRecord, error) {
	strike, err := strconv.ParseFloat(row["strike"], 64)
	if err != nil {
		return models.OptionContractRecord{}, fmt.Errorf("strike %q: %w", row["strike"], err)
	}
	volume, err := parseInt(row["volume"])
	if err != nil {
		return models.OptionContractRecord{}, fmt.Errorf("volume %q: %w", row["volume"], err)
	}
	oi, err := parseInt(row["open_interest"])
	if err != nil {
		return models.OptionContractRecord{}, fmt.Errorf("open_interest %q: %w", row["open_interest"], err)
	}

	side := models.OptionSide(strings.ToUpper(row["type"]))
	switch side {
	case models.Call, models.Put:
	default:
		return models.OptionContractRecord{}, fmt.Errorf("unknown option type %q", row["type"])
	}

	return models.OptionContractRecord{
		Date:         row["date"],
		Underlying:   strings.ToUpper(row["underlying"]),
		Symbol:       row["option_symbol"],
		Strike:       strike,
		Side:         side,
		Volume:       volume,
		OpenInterest: oi,
	}, nil
}

func parseCandleRow(row map[string]string) (models.Candle, error) {
	open, err := strconv.ParseFloat(row["open"], 64)
	if err != nil {
		return models.Candle{}, fmt.Errorf("open %q: %w", row["open"], err)
	}
	high, err := strconv.ParseFloat(row["high"], 64)
	if err != nil {
		return models.Candle{}, fmt.Errorf("high %q: %w", row["high"], err)
	}
	low, err := strconv.ParseFloat(row["low"], 64)
	if err != nil {
		return models.Candle{}, fmt.Errorf("low %q: %w", row["low"], err)
	}
	closing, err := strconv.ParseFloat(row["close"], 64)
	if err != nil {
		return models.Candle{}, fmt.Errorf("close %q: %w", row["close"], err)
	}
	volume, err := strconv.ParseFloat(row["volume"], 64)
	if err != nil {
		return models.Candle{}, fmt.Errorf("volume %q: %w", row["volume"], err)
	}

	ts, err := parseTimestamp(row)
	if err != nil {
		return models.Candle{}, err
	}

	return models.Candle{
		Timestamp: ts,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closing,
		Volume:    volume,
	}, nil
}

// parseTimestamp prefers the epoch column and falls back to the datetime
// string.
func parseTimestamp(row map[string]string) (time.Time, error) {
	if raw := row["timestamp"]; raw != "" {
		epoch, err := strconv.ParseInt(raw, 10, 64)
		if err == nil {
			return time.Unix(epoch, 0).UTC(), nil
		}
	}
	if raw := row["datetime"]; raw != "" {
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
			if ts, err := time.Parse(layout, raw); err == nil {
				return ts.UTC(), nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("no parseable timestamp in %q/%q", row["timestamp"], row["datetime"])
}

func parseInt(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	// Some exports write integer columns as floats.
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}
