package eventlog

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"brokerCtl/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixed = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func fixedClock() time.Time { return fixed }

func TestFormatLine(t *testing.T) {
	line := FormatLine(fixed, model.Finished{ID: "job", ExitCode: 0, Duration: 1500 * time.Millisecond})
	assert.Equal(t, "2025-01-02T03:04:05Z [job] finished: exit=0 duration=1.500s", line)
}

func TestRecordWritesGlobalAndPerTask(t *testing.T) {
	dir := t.TempDir()
	global := filepath.Join(dir, "broker.log")
	perTask := filepath.Join(dir, "tasks", "a.log")
	l := New(Options{GlobalPath: global, Now: fixedClock})

	l.Record(model.Started{ID: "a", Command: []string{"echo", "hi"}}, perTask)
	l.Record(model.Stdout{ID: "a", Line: "hi"}, perTask)
	l.Record(model.Stdout{ID: "b", Line: "other"}, "")

	g, err := os.ReadFile(global)
	require.NoError(t, err)
	assert.Equal(t,
		"2025-01-02T03:04:05Z [a] started: echo hi (cwd=.)\n"+
			"2025-01-02T03:04:05Z [a] stdout: hi\n"+
			"2025-01-02T03:04:05Z [b] stdout: other\n",
		string(g))

	p, err := os.ReadFile(perTask)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(p), "\n"))
	assert.NotContains(t, string(p), "[b]")
}

func TestRotationKeepsOneGeneration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broker.log")
	l := New(Options{GlobalPath: path, RotateBytes: 200, Now: fixedClock})

	lineLen := len(FormatLine(fixed, model.Stdout{ID: "r", Line: "0000"})) + 1
	rotations := 0
	prevSize := int64(0)
	for i := 0; i < 20; i++ {
		l.Record(model.Stdout{ID: "r", Line: strings.Repeat("0", 4)}, "")
		info, err := os.Stat(path)
		require.NoError(t, err)
		if info.Size() < prevSize {
			rotations++
			assert.Equal(t, int64(lineLen), info.Size())
		}
		assert.Less(t, info.Size(), int64(200+lineLen))
		prevSize = info.Size()
	}
	assert.GreaterOrEqual(t, rotations, 2)

	old, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(old), 200)

	matches, err := filepath.Glob(path + "*")
	require.NoError(t, err)
	assert.Len(t, matches, 2)
	assert.Zero(t, l.Dropped())
}

func TestMirrorsReceiveLinesAndEvents(t *testing.T) {
	var lines []string
	var events []model.TaskEvent
	l := New(Options{
		Now:         fixedClock,
		LineMirror:  func(line string) { lines = append(lines, line) },
		EventMirror: func(ev model.TaskEvent) { events = append(events, ev) },
	})

	ev := model.Retrying{ID: "m", Attempt: 1, Delay: 50 * time.Millisecond}
	l.Record(ev, "")

	assert.Equal(t, []string{"2025-01-02T03:04:05Z [m] retrying: attempt=1 delay=0.050s"}, lines)
	assert.Equal(t, []model.TaskEvent{ev}, events)
}

func TestWriteFailuresAreSwallowed(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	var mirrored int
	l := New(Options{GlobalPath: filepath.Join(blocker, "broker.log"), LineMirror: func(string) { mirrored++ }})
	l.Record(model.InternalError{ID: "x", Message: "boom"}, "")

	assert.Equal(t, int64(1), l.Dropped())
	assert.Equal(t, 1, mirrored)
}

func TestHookPanicIsRecovered(t *testing.T) {
	l := New(Options{LineMirror: func(string) { panic("bad hook") }})
	assert.NotPanics(t, func() { l.Record(model.Stdout{ID: "p", Line: "x"}, "") })
}

func TestNilLoggerIsNoop(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() { l.Record(model.Stdout{ID: "n"}, "") })
	assert.Zero(t, l.Dropped())
}

func TestConcurrentRecordsDoNotInterleave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broker.log")
	l := New(Options{GlobalPath: path})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				l.Record(model.Stdout{ID: "c", Line: strings.Repeat("z", 100)}, "")
			}
		}(w)
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 400)
	for _, line := range lines {
		assert.True(t, strings.HasSuffix(line, "[c] stdout: "+strings.Repeat("z", 100)), line)
	}
}
