package server

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestWorkerCancelledMidRunReportsAbort: a worker that fails because
// its context was cancelled answers with the 426/226 pair.
func TestWorkerCancelledMidRunReportsAbort(t *testing.T) {
	t.Parallel()
	s, _ := newWiredSession(t)

	started := make(chan struct{})
	s.spawnWorker("probe", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	<-started
	assert.True(t, s.cancelWorkers())
	s.workers.Wait()

	r := drainOne(t, s.respQ)
	assert.Equal(t, "426", r.code)
	assert.Equal(t, []string{"transfer aborted"}, r.lines)
	r = drainOne(t, s.respQ)
	assert.Equal(t, "226", r.code)
	assert.Equal(t, []string{"abort successful"}, r.lines)
}

// TestWorkerCompletedThenCancelledStaysSilent: a worker that returned
// cleanly has already reported its own success; a cancellation landing
// afterwards must not add a contradictory abort pair.
func TestWorkerCompletedThenCancelledStaysSilent(t *testing.T) {
	t.Parallel()
	s, _ := newWiredSession(t)

	// The worker observes the cancel but completes normally, which is
	// exactly what a transfer that finished in the abort window does.
	started := make(chan struct{})
	s.spawnWorker("probe", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		s.respond("226", "data transfer done")
		return nil
	})
	<-started
	s.cancelWorkers()
	s.workers.Wait()

	r := drainOne(t, s.respQ)
	assert.Equal(t, "226", r.code)
	assert.Equal(t, []string{"data transfer done"}, r.lines)

	// Nothing else may follow.
	s.respQ.Close()
	_, ok := s.respQ.Get()
	assert.False(t, ok, "queue held replies after the completed transfer")
}

// TestWorkerCancelledWhileWaitingForDataConn: cancellation during the
// data-connection wait is an abort, not a 425.
func TestWorkerCancelledWhileWaitingForDataConn(t *testing.T) {
	t.Parallel()
	s, _ := newWiredSession(t)
	s.server.waitFutureTimeout = 5 * time.Second

	s.spawnWorker("probe", func(ctx context.Context) error {
		stream, release, err := s.claimDataStream(ctx)
		if err != nil || stream == nil {
			return err
		}
		defer release()
		return nil
	})

	time.Sleep(100 * time.Millisecond)
	assert.True(t, s.cancelWorkers())
	s.workers.Wait()

	r := drainOne(t, s.respQ)
	assert.Equal(t, "426", r.code)
	r = drainOne(t, s.respQ)
	assert.Equal(t, "226", r.code)
}

// TestListReplyOrderingFastWorker: even when the worker has nothing to
// do (bound data connection, empty directory), the 150 always reaches
// the wire before the worker's 226.
func TestListReplyOrderingFastWorker(t *testing.T) {
	t.Parallel()
	_, addr, _ := startTestServer(t)

	c := dialRaw(t, addr)
	c.readLine()
	c.expect("USER anonymous", "230 anonymous login")

	for i := 0; i < 10; i++ {
		data := c.pasv()
		if got := c.cmd("LIST"); got != "150 list transfer started" {
			t.Fatalf("round %d: first reply = %q, want the 150", i, got)
		}
		if _, err := io.ReadAll(data); err != nil {
			t.Fatalf("round %d: data read failed: %v", i, err)
		}
		if got := c.readLine(); got != "226 list transfer done" {
			t.Fatalf("round %d: second reply = %q", i, got)
		}
	}
}
