package step

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStep struct {
	desc string
	err  error
	ran  *int
}

func (s *fakeStep) Description() string { return s.desc }

func (s *fakeStep) Execute(ctx context.Context) error {
	*s.ran++
	return s.err
}

func TestRun_StopsAtFirstFailure(t *testing.T) {
	var ran int
	boom := errors.New("boom")
	steps := []Step{
		&fakeStep{desc: "one", ran: &ran},
		&fakeStep{desc: "two", err: boom, ran: &ran},
		&fakeStep{desc: "three", ran: &ran},
	}

	executed, err := Run(context.Background(), steps)
	require.Error(t, err)
	assert.Equal(t, 2, ran)
	assert.Equal(t, 2, executed)

	var execErr *ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, "two", execErr.Step)
	assert.True(t, errors.Is(err, boom))
}

func TestRun_CancelledContextRunsNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran int
	executed, err := Run(ctx, []Step{&fakeStep{desc: "one", ran: &ran}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, ran)
	assert.Zero(t, executed)
}

func TestCommandStep(t *testing.T) {
	t.Run("runs with quoting", func(t *testing.T) {
		dir := t.TempDir()
		s := &CommandStep{Cmd: `touch "a file.txt"`, Dir: dir}
		require.NoError(t, s.Execute(context.Background()))
		assert.FileExists(t, filepath.Join(dir, "a file.txt"))
	})

	t.Run("env is visible", func(t *testing.T) {
		dir := t.TempDir()
		s := &CommandStep{
			Cmd: `sh -c "printf %s $GREETING > out.txt"`,
			Dir: dir,
			Env: []string{"GREETING=hello"},
		}
		require.NoError(t, s.Execute(context.Background()))
		data, err := os.ReadFile(filepath.Join(dir, "out.txt"))
		require.NoError(t, err)
		assert.Equal(t, "hello", string(data))
	})

	t.Run("failure carries process output", func(t *testing.T) {
		s := &CommandStep{Cmd: `sh -c "echo nope >&2; exit 3"`, Dir: t.TempDir()}
		err := s.Execute(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nope")
	})

	t.Run("empty command", func(t *testing.T) {
		s := &CommandStep{Cmd: "   "}
		assert.Error(t, s.Execute(context.Background()))
	})
}

func TestCopyFileStep(t *testing.T) {
	dir := t.TempDir()
	from := filepath.Join(dir, "src.txt")
	require.NoError(t, os.WriteFile(from, []byte("payload"), 0o644))

	to := filepath.Join(dir, "nested", "dst.txt")
	s := &CopyFileStep{From: from, To: to}
	require.NoError(t, s.Execute(context.Background()))

	data, err := os.ReadFile(to)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestZipStep_DeterministicAndReadable(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "lib.txt")
	require.NoError(t, os.WriteFile(src, []byte("library"), 0o644))

	build := func(out string) []byte {
		s := &ZipStep{
			Out:   out,
			Files: map[string]string{"libs/lib.txt": src},
			Extra: map[string][]byte{"manifest.json": []byte(`{"name":"app"}`)},
		}
		require.NoError(t, s.Execute(context.Background()))
		data, err := os.ReadFile(out)
		require.NoError(t, err)
		return data
	}

	first := build(filepath.Join(dir, "a.zip"))
	second := build(filepath.Join(dir, "b.zip"))
	assert.Equal(t, first, second, "same inputs must produce a byte-identical archive")

	r, err := zip.OpenReader(filepath.Join(dir, "a.zip"))
	require.NoError(t, err)
	defer r.Close()

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"libs/lib.txt", "manifest.json"}, names)
}
