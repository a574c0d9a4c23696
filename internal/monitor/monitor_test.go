package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hamed0406/endpointmonitor/internal/domain"
	"github.com/hamed0406/endpointmonitor/internal/probe"
	"github.com/hamed0406/endpointmonitor/internal/repo/memory"
)

// gatedProber blocks every probe until release is closed.
type gatedProber struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func newGatedProber() *gatedProber {
	return &gatedProber{started: make(chan struct{}, 16), release: make(chan struct{})}
}

func (g *gatedProber) Probe(ctx context.Context, cfg domain.EndpointConfig) domain.CheckResult {
	g.calls.Add(1)
	g.started <- struct{}{}
	<-g.release
	return domain.CheckResult{Timestamp: time.Now().UnixMilli(), Status: domain.StatusUp, LatencyMS: 5, StatusCode: domain.IntPtr(200), StatusText: "OK"}
}

var upProber = probe.ProberFunc(func(ctx context.Context, cfg domain.EndpointConfig) domain.CheckResult {
	return domain.CheckResult{Timestamp: time.Now().UnixMilli(), Status: domain.StatusUp, LatencyMS: 1, StatusCode: domain.IntPtr(200), StatusText: "OK"}
})

// flakyStore fails Mutate while failMutate is set.
type flakyStore struct {
	*memory.Store
	failMutate atomic.Bool
}

func (f *flakyStore) Mutate(ctx context.Context, id string, fn func(*domain.EndpointRecord) error) error {
	if f.failMutate.Load() {
		return errors.New("connection refused")
	}
	return f.Store.Mutate(ctx, id, fn)
}

func seed(t *testing.T, s *Service) string {
	t.Helper()
	v, err := s.CreateEndpoint(context.Background(), domain.EndpointInput{Name: "svc", URL: "https://example.com/health"})
	require.NoError(t, err)
	return v.ID
}

func TestRunCheck_ConcurrentCallsProbeOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	gp := newGatedProber()
	coord := NewCoordinator(store, gp, zap.NewNop())
	svc := NewService(store, coord, nil, nil)
	id := seed(t, svc)

	var (
		wg    sync.WaitGroup
		first Outcome
		err1  error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, err1 = svc.CheckEndpoint(ctx, id)
	}()
	<-gp.started
	require.True(t, coord.InFlight(id))

	second, err2 := svc.CheckEndpoint(ctx, id)
	require.NoError(t, err2)
	assert.True(t, second.Skipped)
	assert.Equal(t, domain.CheckResult{}, second.Result)

	close(gp.release)
	wg.Wait()
	require.NoError(t, err1)
	assert.False(t, first.Skipped)
	assert.Equal(t, domain.StatusUp, first.Result.Status)

	assert.EqualValues(t, 1, gp.calls.Load())
	v, err := svc.GetEndpoint(ctx, id)
	require.NoError(t, err)
	assert.Len(t, v.StatusHistory, 1)
	assert.Equal(t, domain.StatusUp, v.Status)
	assert.False(t, coord.InFlight(id))
}

func TestRunCheck_DeleteDuringProbeIsAbandoned(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.InfoLevel)
	store := memory.New()
	gp := newGatedProber()
	coord := NewCoordinator(store, gp, zap.New(core))
	svc := NewService(store, coord, nil, nil)
	id := seed(t, svc)

	done := make(chan struct{})
	var (
		out Outcome
		err error
	)
	go func() {
		defer close(done)
		out, err = svc.CheckEndpoint(ctx, id)
	}()
	<-gp.started

	del, derr := svc.DeleteEndpoint(ctx, id)
	require.NoError(t, derr)
	assert.Equal(t, DeleteResult{ID: id, Deleted: true}, del)

	close(gp.release)
	<-done
	require.NoError(t, err)
	assert.True(t, out.Abandoned)

	_, gerr := svc.GetEndpoint(ctx, id)
	assert.ErrorIs(t, gerr, domain.ErrNotFound)
	all, lerr := svc.ListEndpoints(ctx)
	require.NoError(t, lerr)
	assert.Empty(t, all)
	assert.Equal(t, 1, logs.FilterMessage("check_abandoned_deleted").Len())
	assert.False(t, coord.InFlight(id))
}

func TestRunCheck_PersistFailureReleasesGuard(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: memory.New()}
	coord := NewCoordinator(store, upProber, zap.NewNop())
	svc := NewService(store, coord, nil, nil)
	id := seed(t, svc)

	store.failMutate.Store(true)
	_, err := svc.CheckEndpoint(ctx, id)
	require.Error(t, err)
	assert.True(t, domain.IsPersistenceError(err))
	assert.False(t, coord.InFlight(id))

	v, err := svc.GetEndpoint(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, v.StatusHistory, "failed persist must not leave a partial history")

	store.failMutate.Store(false)
	out, err := svc.CheckEndpoint(ctx, id)
	require.NoError(t, err)
	assert.False(t, out.Skipped)
	v, _ = svc.GetEndpoint(ctx, id)
	assert.Len(t, v.StatusHistory, 1)
}

func TestRunCheck_UnknownID(t *testing.T) {
	coord := NewCoordinator(memory.New(), upProber, nil)
	_, err := coord.RunCheck(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.False(t, coord.InFlight("nope"))
}

func TestRunCheck_DifferentIDsRunInParallel(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	gp := newGatedProber()
	svc := NewService(store, NewCoordinator(store, gp, nil), nil, nil)
	a, b := seed(t, svc), seed(t, svc)

	var wg sync.WaitGroup
	for _, id := range []string{a, b} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			out, err := svc.CheckEndpoint(ctx, id)
			assert.NoError(t, err)
			assert.False(t, out.Skipped)
		}(id)
	}
	<-gp.started
	<-gp.started
	close(gp.release)
	wg.Wait()
	assert.EqualValues(t, 2, gp.calls.Load())
}

func TestCreateThenGet_ReportsUnknown(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewService(store, NewCoordinator(store, upProber, nil), nil, nil)
	svc.newID = func() string { return "E1" }
	svc.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }

	created, err := svc.CreateEndpoint(ctx, domain.EndpointInput{Name: " svc ", URL: "https://example.com", Method: "post", Body: `{"a":1}`})
	require.NoError(t, err)
	assert.Equal(t, "E1", created.ID)
	assert.Equal(t, "svc", created.Name)
	assert.Equal(t, "POST", created.Method)
	assert.EqualValues(t, 1_700_000_000_000, created.CreatedAt)

	got, err := svc.GetEndpoint(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUnknown, got.Status)
	assert.Nil(t, got.LastCheck)
	assert.NotNil(t, got.StatusHistory)
	assert.Empty(t, got.StatusHistory)
}

func TestCreate_RejectsInvalidConfig(t *testing.T) {
	store := memory.New()
	svc := NewService(store, NewCoordinator(store, upProber, nil), nil, nil)
	_, err := svc.CreateEndpoint(context.Background(), domain.EndpointInput{Name: "svc", URL: "ftp://example.com"})
	require.Error(t, err)
	assert.True(t, domain.IsConfigError(err))

	all, _ := svc.ListEndpoints(context.Background())
	assert.Empty(t, all)
}

func TestUpdate_KeepsHistoryAndIdentity(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewService(store, NewCoordinator(store, upProber, nil), nil, nil)
	id := seed(t, svc)
	_, err := svc.CheckEndpoint(ctx, id)
	require.NoError(t, err)
	before, _ := svc.GetEndpoint(ctx, id)

	after, err := svc.UpdateEndpoint(ctx, id, domain.EndpointInput{Name: "renamed", URL: "https://example.org", Method: "PUT"})
	require.NoError(t, err)
	assert.Equal(t, id, after.ID)
	assert.Equal(t, before.CreatedAt, after.CreatedAt)
	assert.Equal(t, "renamed", after.Name)
	assert.Equal(t, before.StatusHistory, after.StatusHistory)
	assert.Equal(t, domain.StatusUp, after.Status)

	_, err = svc.UpdateEndpoint(ctx, "missing", domain.EndpointInput{Name: "x", URL: "https://example.org"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	all, _ := svc.ListEndpoints(ctx)
	assert.Len(t, all, 1, "update must not create records")

	_, err = svc.UpdateEndpoint(ctx, id, domain.EndpointInput{Name: "x", URL: "https://example.org", Headers: `["not","an","object"]`})
	assert.True(t, domain.IsConfigError(err))
}

func TestDelete_UnknownIDIsNotAnError(t *testing.T) {
	store := memory.New()
	svc := NewService(store, NewCoordinator(store, upProber, nil), nil, nil)
	res, err := svc.DeleteEndpoint(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, DeleteResult{ID: "ghost", Deleted: false}, res)
}

func TestDiagnoseDNS(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewService(store, NewCoordinator(store, upProber, nil), nil, nil)
	v, err := svc.CreateEndpoint(ctx, domain.EndpointInput{Name: "local", URL: "http://127.0.0.1:8080/health"})
	require.NoError(t, err)

	st, err := svc.DiagnoseDNS(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, probe.DNSResolves, st.Class)

	_, err = svc.DiagnoseDNS(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
