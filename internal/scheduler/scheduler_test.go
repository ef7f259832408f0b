package scheduler

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"videotrans/config"
	"videotrans/internal/mocks"
	"videotrans/internal/pipeline"
	"videotrans/internal/progress"
	"videotrans/internal/task"
	"videotrans/internal/types"
	"videotrans/pkg/subtitle"
)

func testWorkers() config.WorkersConfig {
	return config.WorkersConfig{Prepare: 1, Recognize: 1, Translate: 1, Dub: 1, Align: 1, Assemble: 1}
}

func extractOnlyTask(t *testing.T) *task.Task {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "talk.mp4")
	require.NoError(t, os.WriteFile(src, []byte("fake"), 0o644))

	tk, err := task.New(task.Config{
		SourcePath:     src,
		TargetDir:      filepath.Join(dir, "out"),
		CacheRoot:      filepath.Join(dir, "cache"),
		SourceLanguage: "en",
		TargetLanguage: "-",
		AppMode:        types.AppModeExtractOnly,
	})
	require.NoError(t, err)
	require.NoError(t, tk.EnsureWorkspace())
	require.NoError(t, subtitle.WriteFile(tk.SourceSubtitlePath(), []types.SubtitleEntry{
		{Index: 1, StartSeconds: 0, EndSeconds: 2, Text: "hello"},
	}))
	return tk
}

func prepareMedia() *mocks.Media {
	m := &mocks.Media{}
	m.On("Probe", mock.Anything, mock.Anything).
		Return(types.VideoInfo{VideoCodec: "h264", DurationSeconds: 30}, nil)
	m.On("ExtractAudio", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	m.On("ConvertForRecognition", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	return m
}

func TestSchedulerRunsExtractOnlyTaskToCompletion(t *testing.T) {
	bus := progress.NewBus(64)
	defer bus.Close()
	s := New(testWorkers(), bus)
	defer s.Shutdown()

	tk := extractOnlyTask(t)
	p := pipeline.New(tk, prepareMedia(), pipeline.Collaborators{}, bus)
	require.NoError(t, s.Submit(p))

	assert.Eventually(t, tk.Ended, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, types.StateFinalized, tk.State())
	pct, _ := tk.Progress()
	assert.Equal(t, 100, pct)
	assert.FileExists(t, tk.FinalSubtitlePath("en"))

	// retired tasks are no longer tracked
	assert.Eventually(t, func() bool {
		_, ok := s.Get(tk.Uuid)
		return !ok
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSchedulerFailureRetiresTask(t *testing.T) {
	bus := progress.NewBus(64)
	defer bus.Close()

	var events []progress.Event
	done := make(chan struct{})
	bus.Attach(progress.ReporterFunc(func(ev progress.Event) {
		if ev.Kind == progress.KindError {
			events = append(events, ev)
			close(done)
		}
	}))

	s := New(testWorkers(), bus)
	defer s.Shutdown()

	tk := extractOnlyTask(t)
	require.NoError(t, os.Remove(tk.Config.SourcePath)) // Prepare now fails

	p := pipeline.New(tk, prepareMedia(), pipeline.Collaborators{}, bus)
	require.NoError(t, s.Submit(p))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("no error event")
	}
	assert.True(t, tk.Failed())
	assert.Equal(t, types.StateFailed, tk.State())
	assert.NoDirExists(t, tk.CacheDir())
}

func TestSchedulerStopYieldsCancelledState(t *testing.T) {
	bus := progress.NewBus(64)
	defer bus.Close()
	s := New(testWorkers(), bus)
	defer s.Shutdown()

	tk := extractOnlyTask(t)
	tk.RequestStop()
	p := pipeline.New(tk, prepareMedia(), pipeline.Collaborators{}, bus)
	require.NoError(t, s.Submit(p))

	assert.Eventually(t, tk.Ended, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, types.StateCancelled, tk.State())
	assert.Empty(t, tk.ErrorMessage())
	assert.NoDirExists(t, tk.CacheDir())
}

func TestSchedulerStopUnknownTask(t *testing.T) {
	s := New(testWorkers(), progress.NewBus(8))
	defer s.Shutdown()
	assert.ErrorIs(t, s.StopTask("nope"), ErrUnknownTask)
}

func TestSchedulerRejectsAfterShutdown(t *testing.T) {
	s := New(testWorkers(), progress.NewBus(8))
	s.Shutdown()

	tk := extractOnlyTask(t)
	p := pipeline.New(tk, prepareMedia(), pipeline.Collaborators{}, nil)
	assert.ErrorIs(t, s.Submit(p), ErrSchedulerStopped)
}
