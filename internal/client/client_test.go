package client

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashvault/hashvault/internal/auth"
	"github.com/hashvault/hashvault/internal/observability"
	"github.com/hashvault/hashvault/internal/server"
	"github.com/hashvault/hashvault/internal/vfs"
)

func startServer(t *testing.T) *httptest.Server {
	t.Helper()
	users := auth.NewMemUserStore()
	blobs, err := server.NewBlobStore(t.TempDir())
	require.NoError(t, err)
	srv, err := server.New(users, blobs, observability.Nop(), observability.NewMetrics())
	require.NoError(t, err)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts
}

var aliceCreds = auth.Credentials{Username: "alice", Password: "hunter2", Service: "notes"}

func TestDialAndEcho(t *testing.T) {
	ctx := context.Background()
	ts := startServer(t)

	conn, err := Dial(ctx, ts.URL, nil)
	require.NoError(t, err)

	raw, err := conn.Echo(ctx, map[string]any{"ping": "pong"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ping":"pong"}`, string(raw))
}

func TestDialBadAddress(t *testing.T) {
	_, err := Dial(context.Background(), "http://127.0.0.1:1", nil)
	assert.Error(t, err)
}

func TestSeedFlow(t *testing.T) {
	ctx := context.Background()
	ts := startServer(t)

	conn, err := Dial(ctx, ts.URL, nil)
	require.NoError(t, err)

	seed, err := conn.GetSeed(ctx, "alice")
	require.NoError(t, err)
	require.NotEmpty(t, seed)

	// Registration is trust-on-first-use; the first proof wins.
	ok, err := conn.ProveSeed(ctx, aliceCreds.HashedSeed(seed))
	require.NoError(t, err)
	assert.True(t, ok)

	// A new connection with a wrong proof is refused without detail.
	conn2, err := Dial(ctx, ts.URL, nil)
	require.NoError(t, err)
	seed2, err := conn2.GetSeed(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, seed, seed2)

	ok, err = conn2.ProveSeed(ctx, "not the proof")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnverifiedConnectionGetsNoFiles(t *testing.T) {
	ctx := context.Background()
	ts := startServer(t)

	conn, err := Dial(ctx, ts.URL, nil)
	require.NoError(t, err)
	_, err = conn.GetSeed(ctx, "alice")
	require.NoError(t, err)

	_, _, err = conn.GetFile(ctx, "somehash")
	assert.ErrorIs(t, err, ErrNotAuthorized)
	assert.ErrorIs(t, conn.SaveFile(ctx, "somehash", "data"), ErrNotAuthorized)
	assert.ErrorIs(t, conn.DeleteFile(ctx, "somehash"), ErrNotAuthorized)
}

func TestLoginWrongPassword(t *testing.T) {
	ctx := context.Background()
	ts := startServer(t)

	fs, err := Login(ctx, ts.URL, aliceCreds, nil)
	require.NoError(t, err)
	fs.Close()

	wrong := aliceCreds
	wrong.Password = "guess"
	_, err = Login(ctx, ts.URL, wrong, nil)
	assert.ErrorContains(t, err, "seed proof rejected")
}

// TestLoginLifecycle runs the whole stack end to end: handshake, seed auth,
// then file operations through the VFS against the real server.
func TestLoginLifecycle(t *testing.T) {
	ctx := context.Background()
	ts := startServer(t)

	fs, err := Login(ctx, ts.URL, aliceCreds, nil)
	require.NoError(t, err)
	defer fs.Close()

	require.NoError(t, fs.SaveFile(ctx, "notes/a.txt", "hello"))

	data, err := fs.GetFile(ctx, "notes/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", data)

	ok, err := fs.DoesFileExist(ctx, "notes/a.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, fs.DeleteFile(ctx, "notes/a.txt"))

	ok, err = fs.DoesFileExist(ctx, "notes/a.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = fs.GetFile(ctx, "notes/a.txt")
	assert.ErrorIs(t, err, vfs.ErrMissingFolder)
}

// TestSessionsShareState logs in twice with the same credentials; the token
// is deterministic, so the second session sees the first one's files.
func TestSessionsShareState(t *testing.T) {
	ctx := context.Background()
	ts := startServer(t)

	fs1, err := Login(ctx, ts.URL, aliceCreds, nil)
	require.NoError(t, err)
	require.NoError(t, fs1.SaveFile(ctx, "shared.txt", "persisted"))
	fs1.Close()

	fs2, err := Login(ctx, ts.URL, aliceCreds, nil)
	require.NoError(t, err)
	defer fs2.Close()

	data, err := fs2.GetFile(ctx, "shared.txt")
	require.NoError(t, err)
	assert.Equal(t, "persisted", data)

	index, err := fs2.GetIndex(ctx)
	require.NoError(t, err)
	assert.Contains(t, index.Contents, "shared.txt")
}

func TestEncryptedExportBetweenSessions(t *testing.T) {
	ctx := context.Background()
	ts := startServer(t)

	fs1, err := Login(ctx, ts.URL, aliceCreds, nil)
	require.NoError(t, err)
	require.NoError(t, fs1.SaveFile(ctx, "doc.txt", "portable"))

	bundle, err := fs1.ExportEncryptedFiles(ctx, []string{"doc.txt"}, nil)
	require.NoError(t, err)
	fs1.Close()
	assert.NotContains(t, bundle, "portable")

	var env map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(bundle), &env))
	assert.Contains(t, env, "encryptedData")

	fs2, err := Login(ctx, ts.URL, aliceCreds, nil)
	require.NoError(t, err)
	defer fs2.Close()

	paths, err := fs2.ImportEncryptedFiles(ctx, bundle)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc.txt"}, paths)
}
