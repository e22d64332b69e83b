package logsource

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func line(ts float64, uri string) string {
	return `{"ts":` + strconv.FormatFloat(ts, 'f', 3, 64) +
		`,"duration":0.004,"status":200,"size":1024,` +
		`"request":{"remote_ip":"203.0.113.7","client_ip":"","method":"GET",` +
		`"host":"www.example-site.test","uri":"` + uri + `",` +
		`"headers":{"User-Agent":["curl/8.5.0"],"Accept":["*/*"]}}}`
}

func writeLog(t *testing.T, path string, lines ...string) {
	t.Helper()
	var buf []byte
	for _, l := range lines {
		buf = append(buf, l...)
		buf = append(buf, '\n')
	}
	require.NoError(t, os.WriteFile(path, buf, 0o644))
}

func writeGzipLog(t *testing.T, path string, lines ...string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	for _, l := range lines {
		_, err := gz.Write(append([]byte(l), '\n'))
		require.NoError(t, err)
	}
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
}

func TestFileSource_FetchSince(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, filepath.Join(dir, "access.log"),
		line(1700000300, "/articles/42"),
		line(1700000400, "/articles/43"),
	)

	source := NewFileSource(filepath.Join(dir, "access*.log*"), discard())

	t.Run("zero since returns everything", func(t *testing.T) {
		records, err := source.FetchSince(context.Background(), time.Time{})
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "/articles/42", records[0].URI)
		assert.Equal(t, "203.0.113.7", records[0].ClientAddress)
		assert.Equal(t, "curl/8.5.0", records[0].Headers.Get("User-Agent"))
	})

	t.Run("since filter is strict", func(t *testing.T) {
		since := time.Unix(1700000300, 0).UTC()
		records, err := source.FetchSince(context.Background(), since)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "/articles/43", records[0].URI)
	})

	t.Run("record ids carry file and line number", func(t *testing.T) {
		records, err := source.FetchSince(context.Background(), time.Time{})
		require.NoError(t, err)
		assert.Equal(t, "access.log:1", records[0].ID)
		assert.Equal(t, "access.log:2", records[1].ID)
	})
}

func TestFileSource_ReadsGzipRotations(t *testing.T) {
	dir := t.TempDir()
	// The rotated file holds the older window, the active file the newer one.
	writeGzipLog(t, filepath.Join(dir, "access.log.1.gz"),
		line(1700000100, "/old/1"),
		line(1700000200, "/old/2"),
	)
	writeLog(t, filepath.Join(dir, "access.log"),
		line(1700000300, "/new/1"),
	)

	source := NewFileSource(filepath.Join(dir, "access*.log*"), discard())
	records, err := source.FetchSince(context.Background(), time.Time{})
	require.NoError(t, err)

	require.Len(t, records, 3)
	// Merged feed comes out in timestamp order regardless of file order.
	assert.Equal(t, "/old/1", records[0].URI)
	assert.Equal(t, "/old/2", records[1].URI)
	assert.Equal(t, "/new/1", records[2].URI)
}

func TestFileSource_SkipsUnparseableLines(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, filepath.Join(dir, "access.log"),
		line(1700000300, "/ok/1"),
		`{"ts": not json`,
		"",
		line(1700000400, "/ok/2"),
	)

	source := NewFileSource(filepath.Join(dir, "access*.log*"), discard())
	records, err := source.FetchSince(context.Background(), time.Time{})

	require.NoError(t, err, "bad lines are skipped, never fatal")
	require.Len(t, records, 2)
	assert.Equal(t, "/ok/1", records[0].URI)
	assert.Equal(t, "/ok/2", records[1].URI)
	// Line numbering counts the skipped lines so ids stay stable.
	assert.Equal(t, "access.log:4", records[1].ID)
}

func TestFileSource_EmptyGlob(t *testing.T) {
	source := NewFileSource(filepath.Join(t.TempDir(), "access*.log*"), discard())
	records, err := source.FetchSince(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestParseLine(t *testing.T) {
	t.Run("full record", func(t *testing.T) {
		raw := `{"ts":1700000300.25,"duration":0.012,"status":404,"size":512,` +
			`"request":{"remote_ip":"198.51.100.9","client_ip":"203.0.113.7",` +
			`"method":"POST","host":"Www.Example-Site.Test","uri":"/wp-login.php",` +
			`"headers":{"user-agent":["Mozilla/5.0"],"sec-fetch-site":["none"]}}}`

		rec, err := ParseLine([]byte(raw), "access.log:9")
		require.NoError(t, err)

		assert.Equal(t, "access.log:9", rec.ID)
		assert.Equal(t, time.Unix(1700000300, 250_000_000).UTC(), rec.Timestamp)
		assert.Equal(t, 12*time.Millisecond, rec.Duration)
		assert.Equal(t, "POST", rec.Method)
		assert.Equal(t, 404, rec.Status)
		assert.Equal(t, int64(512), rec.ResponseSize)
		// client_ip wins over remote_ip when the server saw a forwarded
		// address.
		assert.Equal(t, "203.0.113.7", rec.ClientAddress)
		// Header names come out canonicalized.
		assert.Equal(t, "Mozilla/5.0", rec.Headers.Get("User-Agent"))
		assert.Equal(t, "none", rec.Headers.Get("Sec-Fetch-Site"))
	})

	t.Run("falls back to remote_ip", func(t *testing.T) {
		rec, err := ParseLine([]byte(line(1700000300, "/")), "access.log:1")
		require.NoError(t, err)
		assert.Equal(t, "203.0.113.7", rec.ClientAddress)
	})

	t.Run("rejects non-json", func(t *testing.T) {
		_, err := ParseLine([]byte("192.0.2.1 - - [10/Oct/2000] GET /"), "access.log:1")
		assert.Error(t, err)
	})
}
