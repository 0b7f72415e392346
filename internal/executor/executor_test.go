package executor

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockplane/schemasync/internal/rpc"
)

type fakeResult int64

func (r fakeResult) LastInsertId() (int64, error) { return 0, errors.New("not supported") }
func (r fakeResult) RowsAffected() (int64, error) { return int64(r), nil }

// fakeTx fails any query containing "SELEC " with a syntax error positioned at
// that token.
type fakeTx struct {
	queries    []string
	committed  bool
	rolledBack bool
	commitErr  error
}

func (tx *fakeTx) ExecContext(_ context.Context, query string, _ ...any) (sql.Result, error) {
	tx.queries = append(tx.queries, query)
	if i := strings.Index(query, "SELEC "); i >= 0 {
		pos := utf8.RuneCountInString(query[:i]) + 1
		return nil, &pq.Error{
			Code:     "42601",
			Message:  `syntax error at or near "SELEC"`,
			Position: strconv.Itoa(pos),
		}
	}
	return fakeResult(1), nil
}

func (tx *fakeTx) Commit() error {
	tx.committed = true
	return tx.commitErr
}

func (tx *fakeTx) Rollback() error {
	tx.rolledBack = true
	return nil
}

type fakeConn struct {
	tx       *fakeTx
	beginErr error
}

func (c *fakeConn) BeginTx(context.Context, *sql.TxOptions) (Tx, error) {
	if c.beginErr != nil {
		return nil, c.beginErr
	}
	return c.tx, nil
}

const threeAndOneBad = `CREATE TABLE a (id int);
CREATE TABLE b (id int);
CREATE TABLE c (id int);
SELEC 1;
CREATE TABLE d (id int);`

func TestNewScriptStripsComments(t *testing.T) {
	script := NewScript("-- header\nCREATE TABLE a (id int); /* x */ SELECT 1;")
	require.Len(t, script.Statements, 2)
	assert.NotContains(t, script.Text, "header")
	assert.Equal(t, "SELECT 1", script.Statements[1].Text)
}

func TestBatchSuccess(t *testing.T) {
	conn := &fakeConn{tx: &fakeTx{}}
	out, err := NewBatch(conn, nil).Execute(context.Background(), NewScript("CREATE TABLE a (id int); CREATE TABLE b (id int);"), Options{})
	require.NoError(t, err)

	assert.True(t, out.Success())
	assert.True(t, out.Committed)
	assert.Equal(t, ModeBatch, out.Mode)
	assert.Equal(t, 2, out.Total)
	assert.Equal(t, 2, out.Successful)
	require.Len(t, conn.tx.queries, 1, "the batch is one round trip")
	assert.Equal(t, []int{0, 1}, out.SucceededPositions())
}

func TestBatchLocatesFailingStatement(t *testing.T) {
	conn := &fakeConn{tx: &fakeTx{}}
	out, err := NewBatch(conn, nil).Execute(context.Background(), NewScript(threeAndOneBad), Options{})
	require.NoError(t, err)

	assert.False(t, out.Success())
	assert.False(t, out.Committed)
	assert.True(t, conn.tx.rolledBack)
	assert.Equal(t, 3, out.Successful)
	assert.Equal(t, 1, out.Failed)

	require.NotNil(t, out.Failure)
	assert.Equal(t, 4, out.Failure.StatementIndex)
	assert.Equal(t, "SELEC 1", out.Failure.StatementPreview)
	assert.Equal(t, "42601", out.Failure.Code)
	assert.Contains(t, out.Failure.ErrorContext, "SELEC 1")
}

func TestBatchPositionCountsCharacters(t *testing.T) {
	script := NewScript("INSERT INTO t VALUES ('héllo wörld');\nSELEC 1;")
	out, err := NewBatch(&fakeConn{tx: &fakeTx{}}, nil).Execute(context.Background(), script, Options{})
	require.NoError(t, err)

	require.NotNil(t, out.Failure)
	assert.Equal(t, 2, out.Failure.StatementIndex)
}

func TestBatchDryRunRollsBack(t *testing.T) {
	conn := &fakeConn{tx: &fakeTx{}}
	out, err := NewBatch(conn, nil).Execute(context.Background(), NewScript("CREATE TABLE a (id int);"), Options{DryRun: true})
	require.NoError(t, err)

	assert.True(t, out.Success())
	assert.False(t, out.Committed)
	assert.False(t, conn.tx.committed)
	assert.True(t, conn.tx.rolledBack)
}

func TestBatchBeginFailure(t *testing.T) {
	conn := &fakeConn{beginErr: errors.New("connection refused")}
	_, err := NewBatch(conn, nil).Execute(context.Background(), NewScript("SELECT 1;"), Options{})
	assert.ErrorContains(t, err, "connection refused")
}

func TestEmptyScript(t *testing.T) {
	conn := &fakeConn{beginErr: errors.New("should not be called")}
	for _, e := range []Executor{NewBatch(conn, nil), NewStatements(conn, nil), NewRPC(&fakeRunner{}, nil)} {
		out, err := e.Execute(context.Background(), NewScript("  -- nothing\n"), Options{})
		require.NoError(t, err, e.Mode())
		assert.Zero(t, out.Total)
		assert.True(t, out.Success())
	}
}

func TestStatementsStopsAtFirstFailure(t *testing.T) {
	conn := &fakeConn{tx: &fakeTx{}}
	out, err := NewStatements(conn, nil).Execute(context.Background(), NewScript(threeAndOneBad), Options{})
	require.NoError(t, err)

	assert.Equal(t, 4, out.Executed)
	assert.Equal(t, 3, out.Successful)
	assert.Equal(t, 1, out.Failed)
	assert.False(t, out.Committed)
	assert.True(t, conn.tx.rolledBack)
	assert.Len(t, conn.tx.queries, 4, "statement 5 must not run")

	require.NotNil(t, out.Failure)
	assert.Equal(t, 4, out.Failure.StatementIndex)
	assert.Equal(t, 1, out.Failure.SQLPosition)
	for _, r := range out.Results[:3] {
		require.NotNil(t, r.RowsAffected)
	}
}

func TestStatementsContinueOnError(t *testing.T) {
	conn := &fakeConn{tx: &fakeTx{}}
	out, err := NewStatements(conn, nil).Execute(context.Background(), NewScript(threeAndOneBad), Options{ContinueOnError: true})
	require.NoError(t, err)

	assert.Equal(t, 5, out.Executed)
	assert.Equal(t, 4, out.Successful)
	assert.Equal(t, 1, out.Failed)
	assert.True(t, out.Committed)
	assert.False(t, out.Success())
	assert.Equal(t, []int{0, 1, 2, 4}, out.SucceededPositions())

	assert.Contains(t, conn.tx.queries, "ROLLBACK TO SAVEPOINT "+savepointName)
	assert.Equal(t, "SAVEPOINT "+savepointName, conn.tx.queries[0])
}

func TestStatementsDryRun(t *testing.T) {
	conn := &fakeConn{tx: &fakeTx{}}
	out, err := NewStatements(conn, nil).Execute(context.Background(), NewScript("CREATE TABLE a (id int);"), Options{DryRun: true})
	require.NoError(t, err)
	assert.True(t, out.Success())
	assert.False(t, conn.tx.committed)
	assert.True(t, conn.tx.rolledBack)
}

func TestStatementsCommitFailure(t *testing.T) {
	conn := &fakeConn{tx: &fakeTx{commitErr: errors.New("serialization failure")}}
	out, err := NewStatements(conn, nil).Execute(context.Background(), NewScript("CREATE TABLE a (id int);"), Options{})
	require.NoError(t, err)
	assert.False(t, out.Committed)
	require.NotNil(t, out.Failure)
	assert.Contains(t, out.Failure.Error, "serialization failure")
}

type fakeRunner struct {
	calls  []string
	failOn string
	downOn string
}

func (f *fakeRunner) ExecSQL(_ context.Context, sql string) (rpc.ExecResult, error) {
	f.calls = append(f.calls, sql)
	if f.downOn != "" && strings.Contains(sql, f.downOn) {
		return rpc.ExecResult{}, errors.New("connection reset")
	}
	if f.failOn != "" && strings.Contains(sql, f.failOn) {
		return rpc.ExecResult{Success: false, Error: "syntax error"}, nil
	}
	return rpc.ExecResult{Success: true}, nil
}

func TestRPCSuccess(t *testing.T) {
	runner := &fakeRunner{}
	out, err := NewRPC(runner, nil).Execute(context.Background(), NewScript("CREATE TABLE a (id int); CREATE TABLE b (id int);"), Options{})
	require.NoError(t, err)

	assert.True(t, out.Success())
	assert.True(t, out.Committed)
	assert.Equal(t, []string{"BEGIN", "CREATE TABLE a (id int)", "CREATE TABLE b (id int)", "COMMIT"}, runner.calls)
}

func TestRPCStopsAndRollsBack(t *testing.T) {
	runner := &fakeRunner{failOn: "SELEC"}
	out, err := NewRPC(runner, nil).Execute(context.Background(), NewScript(threeAndOneBad), Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, out.Successful)
	assert.Equal(t, 1, out.Failed)
	assert.False(t, out.Committed)
	assert.Equal(t, "ROLLBACK", runner.calls[len(runner.calls)-1])
	assert.NotContains(t, runner.calls, "CREATE TABLE d (id int)")
	require.NotNil(t, out.Failure)
	assert.Equal(t, 4, out.Failure.StatementIndex)
}

func TestRPCContinueOnError(t *testing.T) {
	runner := &fakeRunner{failOn: "SELEC"}
	out, err := NewRPC(runner, nil).Execute(context.Background(), NewScript(threeAndOneBad), Options{ContinueOnError: true})
	require.NoError(t, err)

	assert.Equal(t, 4, out.Successful)
	assert.True(t, out.Committed)
	assert.Contains(t, runner.calls, "ROLLBACK TO SAVEPOINT "+savepointName)
}

func TestRPCTransportFailureEndsRun(t *testing.T) {
	runner := &fakeRunner{downOn: "TABLE b"}
	out, err := NewRPC(runner, nil).Execute(context.Background(), NewScript(threeAndOneBad), Options{ContinueOnError: true})
	require.NoError(t, err)

	assert.Equal(t, 2, out.Executed)
	assert.False(t, out.Committed)
	require.NotNil(t, out.Failure)
	assert.Contains(t, out.Failure.Error, "connection reset")
}

func TestRPCDryRunSendsNothing(t *testing.T) {
	runner := &fakeRunner{}
	out, err := NewRPC(runner, nil).Execute(context.Background(), NewScript(threeAndOneBad), Options{DryRun: true})
	require.NoError(t, err)
	assert.Empty(t, runner.calls)
	assert.Equal(t, 5, out.Total)
	assert.Zero(t, out.Executed)
}
