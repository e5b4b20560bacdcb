package script

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowkit/topicflow/errors"
	"github.com/flowkit/topicflow/types"
)

type memScriptRepo struct {
	mu      sync.Mutex
	scripts map[string]string
	gets    int
}

func (r *memScriptRepo) Get(_ context.Context, name string) (*types.Script, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	source, ok := r.scripts[name]
	if !ok {
		return nil, errors.ErrScriptNotFound
	}
	return &types.Script{Name: name, SourceCode: source}, nil
}

func (r *memScriptRepo) Save(_ context.Context, script *types.Script) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scripts[script.Name] = script.SourceCode
	return nil
}

func (r *memScriptRepo) Delete(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.scripts, name)
	return nil
}

func newTestExecutor(t *testing.T, scripts map[string]string, options ...ExecutorOption) (*Executor, *memScriptRepo) {
	t.Helper()
	repo := &memScriptRepo{scripts: scripts}
	executor, err := NewExecutor(repo, nil, options...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = executor.Close() })
	return executor, repo
}

func TestExecutor_Run(t *testing.T) {
	executor, _ := newTestExecutor(t, map[string]string{
		"GetCalendarWeek": `function GetCalendarWeek() { return 35; }`,
		"Shout":           `function Shout(text) { return text.toUpperCase(); }`,
		"Add":             `function Add(a, b) { return Number(a) + Number(b); }`,
		"Nothing":         `function Nothing() {}`,
	})

	result, err := executor.Run(context.Background(), "GetCalendarWeek")
	require.NoError(t, err)
	assert.Equal(t, "35", result)

	result, err = executor.Run(context.Background(), "Shout", "hello")
	require.NoError(t, err)
	assert.Equal(t, "HELLO", result)

	result, err = executor.Run(context.Background(), "Add", "2", "3")
	require.NoError(t, err)
	assert.Equal(t, "5", result)

	// Scripts without a return value resolve to the empty string.
	result, err = executor.Run(context.Background(), "Nothing")
	require.NoError(t, err)
	assert.Equal(t, "", result)
}

func TestExecutor_RunMissingScript(t *testing.T) {
	executor, _ := newTestExecutor(t, map[string]string{})

	_, err := executor.Run(context.Background(), "Absent")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrScriptNotFound)
}

func TestExecutor_RunCompileError(t *testing.T) {
	executor, _ := newTestExecutor(t, map[string]string{
		"Broken": `function Broken( { return; }`,
	})

	_, err := executor.Run(context.Background(), "Broken")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrScriptExecution)
	assert.True(t, errors.IsInvalid(err))
}

func TestExecutor_RunMissingFunction(t *testing.T) {
	executor, _ := newTestExecutor(t, map[string]string{
		"Renamed": `function SomethingElse() { return 1; }`,
	})

	_, err := executor.Run(context.Background(), "Renamed")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrScriptExecution)
}

func TestExecutor_RunThrownError(t *testing.T) {
	executor, _ := newTestExecutor(t, map[string]string{
		"Panics": `function Panics() { throw new Error("boom"); }`,
	})

	_, err := executor.Run(context.Background(), "Panics")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrScriptExecution)
}

func TestExecutor_RunTimeout(t *testing.T) {
	executor, _ := newTestExecutor(t, map[string]string{
		"Spin": `function Spin() { while (true) {} }`,
	}, WithTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := executor.Run(context.Background(), "Spin")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrScriptExecution)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExecutor_RecompilesOnSourceChange(t *testing.T) {
	executor, repo := newTestExecutor(t, map[string]string{
		"Version": `function Version() { return "v1"; }`,
	})

	result, err := executor.Run(context.Background(), "Version")
	require.NoError(t, err)
	assert.Equal(t, "v1", result)

	// Same source reuses the cached program.
	result, err = executor.Run(context.Background(), "Version")
	require.NoError(t, err)
	assert.Equal(t, "v1", result)

	require.NoError(t, repo.Save(context.Background(), &types.Script{
		Name:       "Version",
		SourceCode: `function Version() { return "v2"; }`,
	}))

	result, err = executor.Run(context.Background(), "Version")
	require.NoError(t, err)
	assert.Equal(t, "v2", result)
}

func TestExecutor_RunsAreIsolated(t *testing.T) {
	executor, _ := newTestExecutor(t, map[string]string{
		"Counter": `var n = 0; function Counter() { n = n + 1; return n; }`,
	})

	for i := 0; i < 3; i++ {
		result, err := executor.Run(context.Background(), "Counter")
		require.NoError(t, err)
		assert.Equal(t, "1", result, "run %d must not see prior state", i)
	}
}

func TestExecutor_Check(t *testing.T) {
	executor, _ := newTestExecutor(t, map[string]string{})

	assert.NoError(t, executor.Check("Fine", `function Fine() { return 1; }`))

	err := executor.Check("Broken", `function (`)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrScriptExecution)
}
