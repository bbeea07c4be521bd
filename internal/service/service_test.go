package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/socialbet/internal/custodian"
	"github.com/alanyoungcy/socialbet/internal/domain"
	"github.com/alanyoungcy/socialbet/internal/exchange"
	"github.com/alanyoungcy/socialbet/internal/metrics"
)

var (
	owner = common.HexToAddress("0x1000000000000000000000000000000000000001")
	admin = common.HexToAddress("0x2000000000000000000000000000000000000002")
	alice = common.HexToAddress("0x3000000000000000000000000000000000000003")
	vault = common.HexToAddress("0x9000000000000000000000000000000000000009")
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type seqJournal struct{ n uint64 }

func (j *seqJournal) Append(context.Context, exchange.Command) (uint64, error) {
	j.n++
	return j.n, nil
}

type fakeBus struct {
	published map[string]int
	stream    [][]byte
	err       error
}

func (b *fakeBus) Publish(_ context.Context, channel string, _ []byte) error {
	if b.err != nil {
		return b.err
	}
	b.published[channel]++
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }

func (b *fakeBus) StreamAppend(_ context.Context, _ string, payload []byte) error {
	if b.err != nil {
		return b.err
	}
	b.stream = append(b.stream, payload)
	return nil
}

func (b *fakeBus) StreamRead(context.Context, string, string, int, time.Duration) ([]domain.StreamMessage, error) {
	return nil, nil
}

type fakeTopic struct{ events []domain.LogEvent }

func (t *fakeTopic) Publish(_ context.Context, events []domain.LogEvent) error {
	t.events = append(t.events, events...)
	return nil
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (a *fakeAudit) Log(_ context.Context, e domain.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	return nil
}

func (a *fakeAudit) List(context.Context, domain.AuditFilter) ([]domain.AuditEntry, error) {
	return a.entries, nil
}

type fakeAlerts struct {
	escalated []uint64
	canceled  []uint64
	errs      []string
}

func (f *fakeAlerts) ResultEscalated(_ context.Context, id uint64, _ int) error {
	f.escalated = append(f.escalated, id)
	return nil
}

func (f *fakeAlerts) EventCanceled(_ context.Context, id uint64) error {
	f.canceled = append(f.canceled, id)
	return nil
}

func (f *fakeAlerts) Error(_ context.Context, where string, _ error) error {
	f.errs = append(f.errs, where)
	return nil
}

type harness struct {
	svc    *ExchangeService
	bus    *fakeBus
	topic  *fakeTopic
	audit  *fakeAudit
	alerts *fakeAlerts
	m      *metrics.Metrics
	now    time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		bus:    &fakeBus{published: map[string]int{}},
		topic:  &fakeTopic{},
		audit:  &fakeAudit{},
		alerts: &fakeAlerts{},
		m:      metrics.New(prometheus.NewRegistry()),
		now:    time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := domain.ClockFunc(func() time.Time { return h.now })
	x := exchange.New(exchange.Params{Owner: owner, MinAmount: 100, MinPrice: 100, FeeBps: 200, MaxResultAttempts: 3},
		custodian.NewMemory(vault), clock, &seqJournal{}, discard())
	h.svc = NewExchangeService(x, discard()).
		WithBus(h.bus).
		WithTopic(h.topic).
		WithAudit(h.audit).
		WithAlerts(h.alerts).
		WithMetrics(h.m)

	_, err := h.svc.Execute(context.Background(), exchange.Command{Op: exchange.OpAddAdmin, Caller: owner, Account: admin})
	require.NoError(t, err)
	return h
}

func (h *harness) addEvent(t *testing.T) uint64 {
	t.Helper()
	r, err := h.svc.Execute(context.Background(), exchange.Command{
		Op: exchange.OpAddEvent, Caller: admin,
		ContentHashes: []common.Hash{{1}}, Starts: []time.Time{h.now.Add(time.Hour)},
		MarketTypes: []domain.MarketType{domain.MarketType1X2}, MarketData: [][]byte{nil},
	})
	require.NoError(t, err)
	return r.IDs[0]
}

func TestExecuteFansOutCommittedEvents(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, 1, h.bus.published["exchange.admin"])
	require.Len(t, h.bus.stream, 1)
	var e domain.LogEvent
	require.NoError(t, json.Unmarshal(h.bus.stream[0], &e))
	assert.Equal(t, uint64(1), e.Seq)
	assert.Equal(t, admin, e.Admin.Account)

	require.Len(t, h.topic.events, 1)
	require.Len(t, h.audit.entries, 1)
	assert.Equal(t, "add_admin", h.audit.entries[0].Event)
	assert.Equal(t, uint64(1), h.audit.entries[0].Seq)
	assert.Equal(t, owner, h.audit.entries[0].Actor)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.m.Ops.WithLabelValues("add_admin")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.m.JournalSeq))
}

func TestExecuteRejectionIsAuditedNotPublished(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Execute(context.Background(), exchange.Command{Op: exchange.OpWithdraw, Caller: alice, Amount: 500})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	require.Len(t, h.bus.stream, 1)
	last := h.audit.entries[len(h.audit.entries)-1]
	assert.Equal(t, "withdraw_rejected", last.Event)
	assert.Zero(t, last.Seq)
	assert.Equal(t, uint64(500), last.Detail["amount"])
	assert.Equal(t, 1.0, testutil.ToFloat64(h.m.OpErrors.WithLabelValues("withdraw", "insufficient_funds")))
}

func TestExecuteAlertsOnEscalationAndCancel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	escalating := h.addEvent(t)
	canceled := h.addEvent(t)
	h.now = h.now.Add(2 * time.Hour)

	for i := 0; i < 3; i++ {
		_, err := h.svc.Execute(ctx, exchange.Command{
			Op: exchange.OpSetEventResult, Caller: admin, ID: escalating,
			MarketIndexes: []int{7}, Outcomes: []domain.Outcome{domain.OutcomeHome},
		})
		require.NoError(t, err)
	}
	_, err := h.svc.Execute(ctx, exchange.Command{Op: exchange.OpCancelEvent, Caller: admin, IDs: []uint64{canceled}})
	require.NoError(t, err)

	assert.Equal(t, []uint64{escalating}, h.alerts.escalated)
	assert.Equal(t, []uint64{canceled}, h.alerts.canceled)
}

func TestExecuteSurvivesBusFailure(t *testing.T) {
	h := newHarness(t)
	h.bus.err = errors.New("redis down")

	id := h.addEvent(t)
	ev, err := h.svc.Event(id)
	require.NoError(t, err)
	assert.Equal(t, domain.EventStateOpen, ev.State)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.m.FanoutFails.WithLabelValues("pubsub")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.m.FanoutFails.WithLabelValues("stream")))
	assert.NoError(t, h.svc.Health(context.Background()))
}

// memBlobs is an in-memory object store.
type memBlobs struct {
	objects map[string][]byte
	parts   []int64
}

func newMemBlobs() *memBlobs { return &memBlobs{objects: map[string][]byte{}} }

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	m.objects[path] = b
	return err
}

func (m *memBlobs) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	m.parts = append(m.parts, partSize)
	return m.Put(ctx, path, data, "")
}

func (m *memBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for p, b := range m.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, domain.BlobInfo{Path: p, Size: int64(len(b))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path > out[j].Path })
	return out, nil
}

func (m *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	_, ok := m.objects[path]
	return ok, nil
}

func TestMetadataRoundTripByContentPointer(t *testing.T) {
	blobs := newMemBlobs()
	svc := NewMetadataService(blobs, discard())
	doc := []byte(`{"home":"Ajax","away":"PSV"}`)

	hash, cid, err := svc.Put(context.Background(), doc)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(cid, "Qm"))
	assert.Contains(t, blobs.objects, "metadata/"+cid+".json")

	got, err := svc.Get(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	_, err = svc.Get(context.Background(), common.Hash{9})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMetadataRejectsInvalidDocuments(t *testing.T) {
	svc := NewMetadataService(newMemBlobs(), discard())
	_, _, err := svc.Put(context.Background(), []byte("not json"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, _, err = svc.Put(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestMetadataDetectsTamperedObject(t *testing.T) {
	blobs := newMemBlobs()
	svc := NewMetadataService(blobs, discard())
	hash, cid, err := svc.Put(context.Background(), []byte(`{"a":1}`))
	require.NoError(t, err)

	blobs.objects["metadata/"+cid+".json"] = []byte(`{"a":2}`)
	_, err = svc.Get(context.Background(), hash)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")
}

func TestArchiveUploadsSnapshot(t *testing.T) {
	h := newHarness(t)
	h.addEvent(t)
	blobs := newMemBlobs()
	audit := &fakeAudit{}
	arch := NewArchiveService(h.svc, blobs, audit, "snapshots/", discard())

	path, err := arch.Archive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "snapshots/2024/06/01/20240601T120000Z.json", path)
	assert.Equal(t, []int64{snapshotPartSize}, blobs.parts)

	var state exchange.State
	require.NoError(t, json.Unmarshal(blobs.objects[path], &state))
	assert.Equal(t, owner, state.Owner)
	assert.Len(t, state.Events, 1)
	assert.Contains(t, state.Admins, admin)

	require.Len(t, audit.entries, 1)
	assert.Equal(t, "snapshot_archived", audit.entries[0].Event)

	h.now = h.now.Add(24 * time.Hour)
	next, err := arch.Archive(context.Background())
	require.NoError(t, err)
	latest, err := arch.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, next, latest)
}

func TestArchiveLatestWithoutSnapshots(t *testing.T) {
	arch := NewArchiveService(nil, newMemBlobs(), nil, "snapshots", discard())
	_, err := arch.Latest(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
