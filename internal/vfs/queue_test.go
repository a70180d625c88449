package vfs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stallWorker parks the queue worker inside a remote call so later
// submissions stay pending and the coalescing rules can be observed.
// It returns the gate to close when the test wants the queue to drain.
func stallWorker(t *testing.T, v *VFS, remote *fakeRemote, done chan<- error) chan struct{} {
	t.Helper()
	gate := make(chan struct{})
	started := make(chan string, 128)
	remote.mu.Lock()
	remote.gate = gate
	remote.started = started
	remote.mu.Unlock()

	go func() {
		done <- v.SaveFile(context.Background(), "stall-blocker", "x")
	}()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never reached the remote")
	}
	return gate
}

func waitPending(t *testing.T, v *VFS, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		v.queue.mu.Lock()
		l := len(v.queue.pending)
		v.queue.mu.Unlock()
		if l == n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("queue never reached %d pending operations", n)
}

func TestQueueCancelsSupersededSave(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	v := newTestVFS(t, remote, "seed-1")

	blockerDone := make(chan error, 1)
	gate := stallWorker(t, v, remote, blockerDone)

	aDone := make(chan error, 1)
	go func() { aDone <- v.SaveFile(ctx, "doc.txt", "A") }()
	waitPending(t, v, 1)

	bDone := make(chan error, 1)
	go func() { bDone <- v.SaveFile(ctx, "doc.txt", "B") }()
	waitPending(t, v, 1)

	// The superseded save resolves as a successful no-op while the remote is
	// still stalled, proving it never executed.
	select {
	case err := <-aDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("superseded save was not cancelled")
	}

	close(gate)
	require.NoError(t, <-blockerDone)
	require.NoError(t, <-bDone)

	data, err := v.GetFile(ctx, "doc.txt")
	require.NoError(t, err)
	assert.Equal(t, "B", data)

	// "A" never hit the network.
	remote.mu.Lock()
	defer remote.mu.Unlock()
	assert.Zero(t, remote.saves[blobName(v, "A")])
	assert.Equal(t, 1, remote.saves[blobName(v, "B")])
}

func TestQueueGetShortCircuitsPendingSave(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	v := newTestVFS(t, remote, "seed-1")

	blockerDone := make(chan error, 1)
	gate := stallWorker(t, v, remote, blockerDone)

	saveDone := make(chan error, 1)
	go func() { saveDone <- v.SaveFile(ctx, "doc.txt", "pending data") }()
	waitPending(t, v, 1)

	// The read answers from the queued payload without waiting for the worker.
	data, err := v.GetFile(ctx, "doc.txt")
	require.NoError(t, err)
	assert.Equal(t, "pending data", data)

	ok, err := v.DoesFileExist(ctx, "doc.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	close(gate)
	require.NoError(t, <-blockerDone)
	require.NoError(t, <-saveDone)
}

func TestQueueGetBehindPendingDelete(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	v := newTestVFS(t, remote, "seed-1")

	require.NoError(t, v.SaveFile(ctx, "doc.txt", "data"))

	blockerDone := make(chan error, 1)
	gate := stallWorker(t, v, remote, blockerDone)

	delDone := make(chan error, 1)
	go func() { delDone <- v.DeleteFile(ctx, "doc.txt") }()
	waitPending(t, v, 1)

	_, err := v.GetFile(ctx, "doc.txt")
	assert.ErrorIs(t, err, ErrQueueInvariant)

	ok, err := v.DoesFileExist(ctx, "doc.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	close(gate)
	require.NoError(t, <-blockerDone)
	require.NoError(t, <-delDone)
}

func TestQueueDeleteCancelsPendingSave(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	v := newTestVFS(t, remote, "seed-1")

	blockerDone := make(chan error, 1)
	gate := stallWorker(t, v, remote, blockerDone)

	saveDone := make(chan error, 1)
	go func() { saveDone <- v.SaveFile(ctx, "doc.txt", "never lands") }()
	waitPending(t, v, 1)

	delDone := make(chan error, 1)
	go func() { delDone <- v.DeleteFile(ctx, "doc.txt") }()
	waitPending(t, v, 1)

	select {
	case err := <-saveDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("save behind delete was not cancelled")
	}

	close(gate)
	require.NoError(t, <-blockerDone)

	// The delete then runs against an index that never saw the file.
	assert.ErrorIs(t, <-delDone, ErrMissingFile)
	remote.mu.Lock()
	defer remote.mu.Unlock()
	assert.Zero(t, remote.saves[blobName(v, "never lands")])
}

func TestQueueFansInConcurrentGets(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	v := newTestVFS(t, remote, "seed-1")

	require.NoError(t, v.SaveFile(ctx, "doc.txt", "shared read"))
	name := blobName(v, "shared read")
	remote.mu.Lock()
	baseline := remote.gets[name]
	remote.mu.Unlock()

	blockerDone := make(chan error, 1)
	gate := stallWorker(t, v, remote, blockerDone)

	type result struct {
		data string
		err  error
	}
	results := make(chan result, 2)
	get := func() {
		data, err := v.fetch(ctx, "doc.txt")
		results <- result{data, err}
	}
	go get()
	waitPending(t, v, 1)
	go get()

	// The second get attaches to the first; pending length stays at one.
	time.Sleep(50 * time.Millisecond)
	waitPending(t, v, 1)

	close(gate)
	require.NoError(t, <-blockerDone)
	for i := 0; i < 2; i++ {
		r := <-results
		require.NoError(t, r.err)
		assert.Equal(t, "shared read", r.data)
	}

	remote.mu.Lock()
	defer remote.mu.Unlock()
	assert.Equal(t, baseline+1, remote.gets[name], "fanned-in gets must execute once")
}

func TestQueueCallerStopsWaitingOnContext(t *testing.T) {
	remote := newFakeRemote()
	v := newTestVFS(t, remote, "seed-1")

	blockerDone := make(chan error, 1)
	gate := stallWorker(t, v, remote, blockerDone)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := v.GetFile(ctx, "doc.txt")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(gate)
	require.NoError(t, <-blockerDone)
}

func TestQueueOrdersOperations(t *testing.T) {
	ctx := context.Background()
	v := newTestVFS(t, newFakeRemote(), "seed-1")

	// Different paths never coalesce; submission order is execution order.
	require.NoError(t, v.SaveFile(ctx, "a.txt", "1"))
	require.NoError(t, v.SaveFile(ctx, "b.txt", "2"))
	require.NoError(t, v.DeleteFile(ctx, "a.txt"))

	ok, err := v.DoesFileExist(ctx, "a.txt")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = v.DoesFileExist(ctx, "b.txt")
	require.NoError(t, err)
	assert.True(t, ok)
}
