package subflow

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/subflow-io/subflow/internal/sigstore"
)

// Signatures written through one SQLite-backed runner must be honored by a
// fresh runner over the same database, the way separate runs of one
// pipeline share a signature database.
func TestRunner_SQLiteSignaturesSurviveRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sigs.db")
	out := filepath.Join(dir, "out.txt")

	job := Job{
		Statement: fmt.Sprintf(`writeFile(%q, "data")`, out),
		StepID:    "produce",
		Output:    OutputSpec{Targets: []string{out}, Mode: OutputDetermined},
	}

	db1, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	store1, err := NewSQLiteStore(db1)
	require.NoError(t, err)

	runner1 := NewRunner(store1, DefaultConfig())
	require.NoError(t, runner1.Start(ctx))

	first, err := runner1.Execute(ctx, job)
	require.NoError(t, err)
	require.True(t, first.OK(), "failure: %v", first.Failure)
	require.False(t, first.SigSkipped)

	runner1.Stop()
	require.NoError(t, store1.Close())

	// Second "run": fresh store and runner over the same database.
	db2, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	store2, err := NewSQLiteStore(db2)
	require.NoError(t, err)
	defer store2.Close()

	runner2 := NewRunner(store2, DefaultConfig())
	require.NoError(t, runner2.Start(ctx))
	defer runner2.Stop()

	second, err := runner2.Execute(ctx, job)
	require.NoError(t, err)
	require.True(t, second.OK())
	require.True(t, second.SigSkipped, "signature must survive the restart")
}

// A runner talking to a remote signature store over sockets skips work
// recorded by another runner on the same service.
func TestRunner_RemoteStoreSharedAcrossRunners(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	out := filepath.Join(dir, "out.txt")

	pushLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	reqLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	svc := sigstore.NewService(sigstore.NewMemoryStore(), nil)
	svc.Start(pushLn, reqLn)
	defer svc.Close()

	job := Job{
		Statement: fmt.Sprintf(`writeFile(%q, "data")`, out),
		StepID:    "produce",
		Output:    OutputSpec{Targets: []string{out}, Mode: OutputDetermined},
	}

	store1, err := DialStore("tcp", pushLn.Addr().String(), reqLn.Addr().String())
	require.NoError(t, err)
	defer store1.Close()

	runner1 := NewRunner(store1, DefaultConfig())
	require.NoError(t, runner1.Start(ctx))
	first, err := runner1.Execute(ctx, job)
	require.NoError(t, err)
	require.True(t, first.OK(), "failure: %v", first.Failure)
	runner1.Stop()

	store2, err := DialStore("tcp", pushLn.Addr().String(), reqLn.Addr().String())
	require.NoError(t, err)
	defer store2.Close()

	runner2 := NewRunner(store2, DefaultConfig())
	require.NoError(t, runner2.Start(ctx))
	defer runner2.Stop()

	// Signature writes travel fire-and-forget, so allow the push to land.
	var second Result
	require.Eventually(t, func() bool {
		res, err := runner2.Execute(ctx, job)
		if err != nil || !res.OK() {
			return false
		}
		second = res
		return second.SigSkipped
	}, 5*time.Second, 100*time.Millisecond, "signature never became visible through the service")
	require.True(t, second.SigSkipped)
}
