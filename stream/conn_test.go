package stream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iammusetouch/ariana/errors"
	"github.com/iammusetouch/ariana/metric"
	"github.com/iammusetouch/ariana/stream/streamtest"
)

const testThrottle = 50 * time.Millisecond

type connRecorder struct {
	mu       sync.Mutex
	opened   int
	backlogs [][]Event
	batches  [][]Event
	closes   []error

	openCh    chan struct{}
	backlogCh chan []Event
	batchCh   chan []Event
	closeCh   chan error
}

func newConnRecorder() *connRecorder {
	return &connRecorder{
		openCh:    make(chan struct{}, 4),
		backlogCh: make(chan []Event, 4),
		batchCh:   make(chan []Event, 16),
		closeCh:   make(chan error, 4),
	}
}

func (r *connRecorder) options(url string) Options {
	return Options{
		URL:              url,
		ThrottleInterval: testThrottle,
		OnOpen: func() {
			r.mu.Lock()
			r.opened++
			r.mu.Unlock()
			r.openCh <- struct{}{}
		},
		OnBacklog: func(evs []Event) {
			r.mu.Lock()
			r.backlogs = append(r.backlogs, evs)
			r.mu.Unlock()
			r.backlogCh <- evs
		},
		OnBatch: func(evs []Event) {
			r.mu.Lock()
			r.batches = append(r.batches, evs)
			r.mu.Unlock()
			r.batchCh <- evs
		},
		OnClose: func(err error) {
			r.mu.Lock()
			r.closes = append(r.closes, err)
			r.mu.Unlock()
			r.closeCh <- err
		},
	}
}

func (r *connRecorder) counts() (backlogs, batches, closes int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.backlogs), len(r.batches), len(r.closes)
}

func waitEvents(t *testing.T, ch <-chan []Event, what string) []Event {
	t.Helper()
	select {
	case evs := <-ch:
		return evs
	case <-time.After(3 * time.Second):
		t.Fatalf("timeout waiting for %s", what)
		return nil
	}
}

func waitOpen(t *testing.T, r *connRecorder) {
	t.Helper()
	select {
	case <-r.openCh:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for open")
	}
}

func endpointFor(t *testing.T, srv *streamtest.Server) Endpoint {
	t.Helper()
	ep, err := NewEndpoint(srv.URL, "")
	require.NoError(t, err)
	return ep
}

func TestConn_BacklogThenIncrement(t *testing.T) {
	srv := streamtest.NewServer(t)
	srv.SetBacklog("v1", `[{"id":1},{"id":2}]`)

	rec := newConnRecorder()
	c := Open(context.Background(), rec.options(endpointFor(t, srv).URL("v1")))
	defer c.Close()

	backlog := waitEvents(t, rec.backlogCh, "backlog")
	assert.JSONEq(t, `[{"id":1},{"id":2}]`, asJSON(t, backlog))

	srv.WaitConnections(t, "v1", 1, 3*time.Second)
	srv.Send(t, "v1", `{"id":3}`)

	batch := waitEvents(t, rec.batchCh, "batch")
	assert.JSONEq(t, `[{"id":3}]`, asJSON(t, batch))

	time.Sleep(3 * testThrottle)
	backlogs, batches, closes := rec.counts()
	assert.Equal(t, 1, backlogs)
	assert.Equal(t, 1, batches)
	assert.Equal(t, 0, closes)
	assert.JSONEq(t, `[{"id":1},{"id":2},{"id":3}]`, asJSON(t, c.Events()))
}

func TestConn_LaterArraysAreIncrements(t *testing.T) {
	srv := streamtest.NewServer(t)
	srv.SetBacklog("v1", `[{"id":1}]`)

	rec := newConnRecorder()
	c := Open(context.Background(), rec.options(endpointFor(t, srv).URL("v1")))
	defer c.Close()

	waitEvents(t, rec.backlogCh, "backlog")
	srv.WaitConnections(t, "v1", 1, 3*time.Second)
	srv.Send(t, "v1", `[{"id":2},{"id":3}]`)
	srv.Send(t, "v1", `{"id":4}`)

	var got []Event
	for len(got) < 3 {
		got = append(got, waitEvents(t, rec.batchCh, "batch")...)
	}
	assert.JSONEq(t, `[{"id":2},{"id":3},{"id":4}]`, asJSON(t, got))

	backlogs, _, _ := rec.counts()
	assert.Equal(t, 1, backlogs, "only the first frame is a backlog")
}

func TestConn_FirstFrameRecordSkipsBacklog(t *testing.T) {
	srv := streamtest.NewServer(t)

	rec := newConnRecorder()
	c := Open(context.Background(), rec.options(endpointFor(t, srv).URL("v1")))
	defer c.Close()

	waitOpen(t, rec)
	srv.WaitConnections(t, "v1", 1, 3*time.Second)
	srv.Send(t, "v1", `{"id":1}`)
	srv.Send(t, "v1", `[{"id":2}]`)

	var got []Event
	for len(got) < 2 {
		got = append(got, waitEvents(t, rec.batchCh, "batch")...)
	}
	assert.JSONEq(t, `[{"id":1},{"id":2}]`, asJSON(t, got))

	backlogs, _, _ := rec.counts()
	assert.Equal(t, 0, backlogs)
}

func TestConn_MalformedFrameIsDropped(t *testing.T) {
	srv := streamtest.NewServer(t)
	srv.SetBacklog("v1", `[]`)

	registry := metric.NewMetricsRegistry()
	m, err := NewMetrics(registry, "stream")
	require.NoError(t, err)

	rec := newConnRecorder()
	opts := rec.options(endpointFor(t, srv).URL("v1"))
	opts.Metrics = m
	c := Open(context.Background(), opts)
	defer c.Close()

	waitEvents(t, rec.backlogCh, "backlog")
	srv.WaitConnections(t, "v1", 1, 3*time.Second)
	srv.Send(t, "v1", `not json`)
	srv.Send(t, "v1", `{"id":3}`)

	batch := waitEvents(t, rec.batchCh, "batch")
	assert.JSONEq(t, `[{"id":3}]`, asJSON(t, batch))

	_, _, closes := rec.counts()
	assert.Equal(t, 0, closes, "decode errors do not close the connection")
	assert.False(t, c.Closed())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.decodeErrors))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.framesReceived.WithLabelValues("backlog")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.framesReceived.WithLabelValues("record")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.connectionsOpen))
}

func TestConn_RemoteCloseReportsOnce(t *testing.T) {
	srv := streamtest.NewServer(t)

	rec := newConnRecorder()
	c := Open(context.Background(), rec.options(endpointFor(t, srv).URL("v1")))
	defer c.Close()

	waitOpen(t, rec)
	srv.WaitConnections(t, "v1", 1, 3*time.Second)
	srv.Drop("v1")

	select {
	case err := <-rec.closeCh:
		assert.NoError(t, err, "normal closure carries no error")
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for close")
	}

	<-c.Done()
	c.Close()
	time.Sleep(50 * time.Millisecond)
	_, _, closes := rec.counts()
	assert.Equal(t, 1, closes)
	assert.True(t, c.Closed())
}

func TestConn_AbruptCloseIsTransient(t *testing.T) {
	srv := streamtest.NewServer(t)

	rec := newConnRecorder()
	c := Open(context.Background(), rec.options(endpointFor(t, srv).URL("v1")))
	defer c.Close()

	waitOpen(t, rec)
	srv.WaitConnections(t, "v1", 1, 3*time.Second)
	srv.Kill("v1")

	select {
	case err := <-rec.closeCh:
		require.Error(t, err)
		assert.True(t, errors.IsTransient(err))
		assert.ErrorIs(t, err, errors.ErrConnectionLost)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for close")
	}
}

func TestConn_CloseSuppressesCallbacks(t *testing.T) {
	srv := streamtest.NewServer(t)

	rec := newConnRecorder()
	c := Open(context.Background(), rec.options(endpointFor(t, srv).URL("v1")))

	waitOpen(t, rec)
	srv.WaitConnections(t, "v1", 1, 3*time.Second)
	srv.Send(t, "v1", `{"id":1}`)
	time.Sleep(10 * time.Millisecond)

	c.Close()
	c.Close()

	select {
	case <-c.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("receive goroutine did not exit")
	}
	srv.WaitActive(t, "v1", 0, 3*time.Second)

	time.Sleep(3 * testThrottle)
	_, batches, closes := rec.counts()
	assert.Equal(t, 0, batches, "pending batch is discarded on close")
	assert.Equal(t, 0, closes, "explicit close does not report")
}

func TestConn_DialFailureReportsClose(t *testing.T) {
	srv := streamtest.NewServer(t)
	url := endpointFor(t, srv).URL("v1")
	srv.Close()

	rec := newConnRecorder()
	c := Open(context.Background(), rec.options(url))
	defer c.Close()

	select {
	case err := <-rec.closeCh:
		require.Error(t, err)
		assert.True(t, errors.IsTransient(err))
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for close")
	}

	rec.mu.Lock()
	assert.Equal(t, 0, rec.opened)
	rec.mu.Unlock()
}

func TestConn_CloseBeforeDialCompletes(t *testing.T) {
	srv := streamtest.NewServer(t)

	rec := newConnRecorder()
	c := Open(context.Background(), rec.options(endpointFor(t, srv).URL("v1")))
	c.Close()

	select {
	case <-c.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("receive goroutine did not exit")
	}

	_, _, closes := rec.counts()
	assert.Equal(t, 0, closes)
}
