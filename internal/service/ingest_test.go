package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"battlelog-tracker/internal/api"
	"battlelog-tracker/internal/domain"

	"github.com/rs/zerolog"
)

type fakeWriter struct {
	mu        sync.Mutex
	inserted  [][]string
	insertErr error
	latest    domain.Row
	latestErr error
}

func (w *fakeWriter) InsertRawRow(ctx context.Context, values []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.insertErr != nil {
		return w.insertErr
	}
	w.inserted = append(w.inserted, values)
	return nil
}

func (w *fakeWriter) FetchLatestRecord(ctx context.Context) (domain.Row, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.latest, w.latestErr
}

type fakeConverter struct {
	runs int
	err  error
}

func (c *fakeConverter) Run(ctx context.Context) error {
	c.runs++
	return c.err
}

type fakePeer struct {
	configured bool
	pushed     []domain.Row
	err        error
}

func (p *fakePeer) Configured() bool { return p.configured }

func (p *fakePeer) PushBattleLog(ctx context.Context, row domain.Row) error {
	p.pushed = append(p.pushed, row)
	return p.err
}

type ingestFixture struct {
	*fixture
	writer    *fakeWriter
	converter *fakeConverter
	peer      *fakePeer
	ingest    *IngestService
}

func newIngestFixture(t *testing.T) *ingestFixture {
	t.Helper()
	latest := r1()
	latest.Date = "2025-06-12 20:00:00"

	f := &ingestFixture{
		fixture:   newFixture(t, []domain.BattleRecord{r1()}, nil),
		writer:    &fakeWriter{latest: latest.Row()},
		converter: &fakeConverter{},
		peer:      &fakePeer{configured: true},
	}
	f.ingest = NewIngestService(f.writer, f.converter, f.peer, f.seasons, zerolog.Nop(), nil)
	return f
}

func rawRow() []string {
	raw := make([]string, 18)
	raw[0] = "２０２５-06-12 20:00:00"
	raw[1] = "ＡＢＣ"
	return raw
}

func TestSubmitAppendsConvertedRecord(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	res, err := f.ingest.Submit(ctx, rawRow())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.ID == "" || !res.PeerPushed {
		t.Fatalf("unexpected result %+v", res)
	}

	if len(f.writer.inserted) != 1 {
		t.Fatalf("expected one raw insert, got %d", len(f.writer.inserted))
	}
	if got := f.writer.inserted[0]; got[0] != "2025-06-12 20:00:00" || got[1] != "ABC" {
		t.Fatalf("expected NFKC-normalized fields, got %q %q", got[0], got[1])
	}
	if f.converter.runs != 1 {
		t.Fatalf("expected one conversion, got %d", f.converter.runs)
	}

	recs, err := f.seasons.Get(ctx, "")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(recs) != 2 || recs[0].Date != "2025-06-12 20:00:00" || recs[0].Origin != domain.OriginSelfHosted {
		t.Fatalf("expected converted record at the head, got %+v", recs[0])
	}
	if len(f.peer.pushed) != 1 || f.peer.pushed[0][domain.ColumnDate] != "2025-06-12 20:00:00" {
		t.Fatalf("expected converted row to be pushed, got %v", f.peer.pushed)
	}
}

func TestSubmitFailureReasons(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(f *ingestFixture)
		raw    []string
		want   error
		reason string
		runs   int
	}{
		{
			name:   "wrong field count",
			setup:  func(f *ingestFixture) {},
			raw:    []string{"only", "two"},
			want:   ErrInvalidRow,
			reason: ReasonInvalidRow,
		},
		{
			name:   "insert fails",
			setup:  func(f *ingestFixture) { f.writer.insertErr = errUnavailable },
			raw:    rawRow(),
			want:   ErrWriteFailed,
			reason: ReasonWriteFailed,
		},
		{
			name:   "conversion fails",
			setup:  func(f *ingestFixture) { f.converter.err = errors.New("exit status 1") },
			raw:    rawRow(),
			want:   ErrConversionFailed,
			reason: ReasonConversionFailed,
			runs:   1,
		},
		{
			name:   "converted row missing",
			setup:  func(f *ingestFixture) { f.writer.latest, f.writer.latestErr = nil, api.ErrRowNotFound },
			raw:    rawRow(),
			want:   ErrConvertedRowMissing,
			reason: ReasonConvertedRowMissing,
			runs:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newIngestFixture(t)
			tt.setup(f)

			_, err := f.ingest.Submit(context.Background(), tt.raw)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if got := FailureReason(err); got != tt.reason {
				t.Fatalf("expected reason %q, got %q", tt.reason, got)
			}
			if f.converter.runs != tt.runs {
				t.Fatalf("expected %d conversions, got %d", tt.runs, f.converter.runs)
			}
			if _, ok := f.seasons.Peek(""); ok {
				t.Fatal("expected the season cache to be untouched")
			}
			if len(f.peer.pushed) != 0 {
				t.Fatal("expected nothing to be pushed")
			}
		})
	}
}

func TestSubmitToleratesPeerFailure(t *testing.T) {
	f := newIngestFixture(t)
	f.peer.err = errUnavailable

	res, err := f.ingest.Submit(context.Background(), rawRow())
	if err != nil {
		t.Fatalf("expected peer failure to be best-effort, got %v", err)
	}
	if res.PeerPushed {
		t.Fatal("expected PeerPushed to be false")
	}
}

func TestSubmitSkipsUnconfiguredPeer(t *testing.T) {
	f := newIngestFixture(t)
	f.peer.configured = false

	if _, err := f.ingest.Submit(context.Background(), rawRow()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(f.peer.pushed) != 0 {
		t.Fatal("expected no push to an unconfigured peer")
	}
}

func TestReceiveOrigins(t *testing.T) {
	tests := []struct {
		label string
		want  domain.Origin
	}{
		{"", domain.OriginFederated},
		{"一般", domain.OriginFederated},
		{"限定", domain.OriginSelfHosted},
		{"self-hosted", domain.OriginSelfHosted},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			f := newIngestFixture(t)
			row := r1().Row()
			row[domain.ColumnDate] = "2025-06-13 00:00:00"
			if tt.label == "" {
				delete(row, domain.ColumnOrigin)
			} else {
				row[domain.ColumnOrigin] = tt.label
			}

			log, err := f.ingest.Receive(context.Background(), row)
			if err != nil {
				t.Fatalf("receive: %v", err)
			}
			head := log.Records[0]
			if head.Date != "2025-06-13 00:00:00" || head.Origin != tt.want {
				t.Fatalf("expected head %q tagged %q, got %q tagged %q", "2025-06-13 00:00:00", tt.want, head.Date, head.Origin)
			}
		})
	}
}

func TestReceiveRejectsBadRows(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	if _, err := f.ingest.Receive(ctx, domain.Row{}); !errors.Is(err, ErrInvalidRow) {
		t.Fatalf("expected ErrInvalidRow for an empty row, got %v", err)
	}
	if _, err := f.ingest.Receive(ctx, domain.Row{domain.ColumnOrigin: "一般"}); !errors.Is(err, ErrInvalidRow) {
		t.Fatalf("expected ErrInvalidRow for a label-only row, got %v", err)
	}

	row := r1().Row()
	row[domain.ColumnOrigin] = "unknown"
	if _, err := f.ingest.Receive(ctx, row); !errors.Is(err, ErrInvalidRow) {
		t.Fatalf("expected ErrInvalidRow for an unknown origin, got %v", err)
	}
	if f.source.calls.Load() != 0 {
		t.Fatal("expected rejected rows not to load the season")
	}
}
