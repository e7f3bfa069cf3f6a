package device

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// TimestampLayout is the punch timestamp format used by terminals and
// legacy export files alike.
const TimestampLayout = "2006-01-02 15:04:05"

// Row is one punch from a legacy terminal export. Badge, when recorded,
// is the canonical employee id for file-based sources.
type Row struct {
	UserID    string
	Name      string
	Badge     string
	Timestamp time.Time
	Direction string
}

// FileSource reads punches from a legacy export: CSV with columns
// user_id,name,badge,timestamp[,direction]. An optional header row is
// detected by its unparsable timestamp.
type FileSource struct {
	path   string
	logger zerolog.Logger
}

// NewFileSource creates a source for the export file at path.
func NewFileSource(path string, logger zerolog.Logger) *FileSource {
	return &FileSource{
		path:   path,
		logger: logger.With().Str("source_path", path).Logger(),
	}
}

// Path returns the export file path.
func (s *FileSource) Path() string {
	return s.path
}

// Read parses the export. It returns the parsed rows and the number of
// rows dropped for an unparsable timestamp or missing columns. A missing
// or unreadable file is an error; malformed rows are not.
func (s *FileSource) Read() ([]Row, int, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, 0, fmt.Errorf("open export %s: %w", s.path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, 0, fmt.Errorf("read export %s: %w", s.path, err)
	}

	var rows []Row
	parseFailures := 0
	for i, rec := range records {
		if len(rec) < 4 {
			if i == 0 {
				continue // tolerated header variant
			}
			parseFailures++
			continue
		}
		ts, err := time.Parse(TimestampLayout, strings.TrimSpace(rec[3]))
		if err != nil {
			if i == 0 {
				continue // header row
			}
			s.logger.Warn().Int("row", i+1).Str("value", rec[3]).Msg("dropping row with unparsable timestamp")
			parseFailures++
			continue
		}

		row := Row{
			UserID:    strings.TrimSpace(rec[0]),
			Name:      strings.TrimSpace(rec[1]),
			Badge:     strings.TrimSpace(rec[2]),
			Timestamp: ts,
		}
		if len(rec) > 4 {
			row.Direction = strings.ToLower(strings.TrimSpace(rec[4]))
		}
		rows = append(rows, row)
	}

	return rows, parseFailures, nil
}
