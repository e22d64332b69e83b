// Package logsource implements the log-source boundary over a directory of
// JSON-lines access logs (the shape Caddy and similar servers emit): the
// active file plus gzip'd rotations. The feed is reconstructed in timestamp
// order; unparseable lines are skipped and logged, never fatal.
package logsource

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"

	"github.com/trafficlens/trafficlens/internal/domain"
)

const maxLineSize = 1024 * 1024 // tolerate large header blobs

// FileSource reads raw access-log records from files matching a glob.
type FileSource struct {
	glob   string
	logger *slog.Logger
}

// NewFileSource creates a source over the given glob pattern, for example
// "/var/log/caddy/access*.log*".
func NewFileSource(glob string, logger *slog.Logger) *FileSource {
	return &FileSource{glob: glob, logger: logger.With("component", "file_log_source")}
}

// accessLine is one server-emitted JSON log line. Timestamps are epoch
// seconds with fractional precision; duration is in seconds.
type accessLine struct {
	TS       float64 `json:"ts"`
	Duration float64 `json:"duration"`
	Status   int     `json:"status"`
	Size     int64   `json:"size"`
	Request  struct {
		RemoteIP string              `json:"remote_ip"`
		ClientIP string              `json:"client_ip"`
		Method   string              `json:"method"`
		Host     string              `json:"host"`
		URI      string              `json:"uri"`
		Headers  map[string][]string `json:"headers"`
	} `json:"request"`
}

// FetchSince returns all records strictly newer than since, ordered by
// timestamp. Record IDs are "<file>:<line>", stable for a given rotation set.
func (s *FileSource) FetchSince(ctx context.Context, since time.Time) ([]domain.RawLogRecord, error) {
	paths, err := filepath.Glob(s.glob)
	if err != nil {
		return nil, fmt.Errorf("bad log glob %q: %w", s.glob, err)
	}
	sort.Strings(paths)

	var records []domain.RawLogRecord
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fileRecords, err := s.readFile(path, since)
		if err != nil {
			return nil, err
		}
		records = append(records, fileRecords...)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	return records, nil
}

func (s *FileSource) readFile(path string, since time.Time) ([]domain.RawLogRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	defer f.Close()

	var reader io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip log file %s: %w", path, err)
		}
		defer gz.Close()
		reader = gz
	}

	var records []domain.RawLogRecord
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	lineNo := 0
	skipped := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		record, err := ParseLine(line, fmt.Sprintf("%s:%d", filepath.Base(path), lineNo))
		if err != nil {
			skipped++
			continue
		}
		if !record.Timestamp.After(since) {
			continue
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan log file %s: %w", path, err)
	}
	if skipped > 0 {
		s.logger.Warn("skipped unparseable log lines", "file", path, "count", skipped)
	}
	return records, nil
}

// ParseLine decodes one server-emitted JSON log line into a raw record with
// the given opaque id.
func ParseLine(line []byte, id string) (domain.RawLogRecord, error) {
	var parsed accessLine
	if err := json.Unmarshal(line, &parsed); err != nil {
		return domain.RawLogRecord{}, fmt.Errorf("unparseable log line: %w", err)
	}
	return toRecord(parsed, id), nil
}

func toRecord(line accessLine, id string) domain.RawLogRecord {
	headers := make(http.Header, len(line.Request.Headers))
	for name, values := range line.Request.Headers {
		for _, v := range values {
			headers.Add(name, v)
		}
	}

	address := line.Request.ClientIP
	if address == "" {
		address = line.Request.RemoteIP
	}

	sec, frac := math.Modf(line.TS)
	return domain.RawLogRecord{
		ID:            id,
		Timestamp:     time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC(),
		Duration:      time.Duration(line.Duration * float64(time.Second)),
		Method:        line.Request.Method,
		URI:           line.Request.URI,
		Host:          line.Request.Host,
		Status:        line.Status,
		ResponseSize:  line.Size,
		ClientAddress: address,
		Headers:       headers,
	}
}
