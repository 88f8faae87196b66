package s3blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/wolfbot/internal/domain"
)

type memWriter struct {
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newMemWriter() *memWriter {
	return &memWriter{objects: map[string][]byte{}, types: map[string]string{}}
}

func (w *memWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	if w.putErr != nil {
		return w.putErr
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.objects[path] = b
	w.types[path] = contentType
	return nil
}

func (w *memWriter) PutMultipart(_ context.Context, path string, data io.Reader, _ int64) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.objects[path] = b
	return nil
}

type memAudit struct{ entries []domain.AuditEntry }

func (m *memAudit) Log(context.Context, string, map[string]any) error { return nil }

func (m *memAudit) List(context.Context, int) ([]domain.AuditEntry, error) {
	return m.entries, nil
}

func summary() domain.DaySummary {
	return domain.DaySummary{
		ID:              "0b6e4a52",
		SessionDate:     time.Date(2026, 3, 2, 20, 58, 0, 0, time.UTC),
		CurrentEquity:   decimal.RequireFromString("10250.5"),
		LastEquity:      decimal.NewFromInt(10000),
		Delta:           decimal.RequireFromString("250.5"),
		CancelledOrders: 2,
		Liquidated:      []string{"AAPL", "BTCUSD"},
	}
}

func TestArchiveDaySummary(t *testing.T) {
	w := newMemWriter()
	audit := &memAudit{entries: []domain.AuditEntry{
		{ID: 3, Event: domain.AuditFill, CreatedAt: time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)},
		{ID: 2, Event: domain.AuditOrderSubmitted, CreatedAt: time.Date(2026, 3, 2, 14, 31, 0, 0, time.UTC)},
		{ID: 1, Event: domain.AuditFill, CreatedAt: time.Date(2026, 2, 27, 15, 0, 0, 0, time.UTC)},
	}}
	a := NewReportArchiver(w, audit)

	path, err := a.ArchiveDaySummary(context.Background(), summary())
	require.NoError(t, err)
	assert.Equal(t, "reports/2026/03/02/0b6e4a52.json", path)
	assert.Equal(t, "application/json", w.types[path])
	assert.Contains(t, string(w.objects[path]), `"liquidated": [`)
	assert.Contains(t, string(w.objects[path]), `"delta": "250.5"`)

	lines := strings.Split(strings.TrimSpace(string(w.objects["reports/2026/03/02/audit.jsonl"])), "\n")
	assert.Len(t, lines, 2)
}

func TestArchiveDaySummaryWithoutAudit(t *testing.T) {
	w := newMemWriter()
	a := NewReportArchiver(w, nil)

	_, err := a.ArchiveDaySummary(context.Background(), summary())
	require.NoError(t, err)
	assert.Len(t, w.objects, 1)

	w.putErr = errors.New("bucket gone")
	_, err = a.ArchiveDaySummary(context.Background(), summary())
	assert.ErrorContains(t, err, "s3blob: archive day summary")
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "http://127.0.0.1:9000", normaliseEndpoint("http://127.0.0.1:9000", true))
}

func TestNewRequiresBucketAndRegion(t *testing.T) {
	_, err := New(context.Background(), ClientConfig{Region: "us-east-1"})
	assert.Error(t, err)
	_, err = New(context.Background(), ClientConfig{Bucket: "b"})
	assert.Error(t, err)
}

func TestWriterAgainstFakeS3(t *testing.T) {
	var (
		mu   sync.Mutex
		puts = map[string][]byte{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusNotImplemented)
			return
		}
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r.Body)
		mu.Lock()
		puts[r.URL.Path] = buf.Bytes()
		mu.Unlock()
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := New(context.Background(), ClientConfig{
		Endpoint:       srv.URL,
		Region:         "us-east-1",
		Bucket:         "wolfbot",
		AccessKey:      "AKIDEXAMPLE",
		SecretKey:      "secret",
		ForcePathStyle: true,
	})
	require.NoError(t, err)
	w := NewWriter(c)

	require.NoError(t, w.Put(context.Background(), "reports/a.json", strings.NewReader(`{"a":1}`), "application/json"))
	require.NoError(t, w.PutMultipart(context.Background(), "reports/a.jsonl", strings.NewReader("{}\n"), 1))

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, puts, "/wolfbot/reports/a.json")
	assert.Contains(t, puts, "/wolfbot/reports/a.jsonl")
}
