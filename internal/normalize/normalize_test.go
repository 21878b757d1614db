package normalize

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"chorusd/internal/services"
	"chorusd/internal/storage"
)

type fakeExecutor struct {
	err     error
	binary  string
	args    []string
	writeTo bool
}

func (f *fakeExecutor) Run(_ context.Context, binary string, args []string, _ func(string)) error {
	f.binary = binary
	f.args = append([]string(nil), args...)
	if f.err != nil {
		return f.err
	}
	if f.writeTo {
		// The output path is the final argument.
		out := args[len(args)-1]
		return os.WriteFile(out, []byte("RIFF"), 0o644)
	}
	return nil
}

func newTestNormalizer(t *testing.T, exec *fakeExecutor) (*Normalizer, *storage.Manager) {
	t.Helper()
	base := t.TempDir()
	store := storage.NewManager(
		filepath.Join(base, "intake"),
		filepath.Join(base, "output"),
		filepath.Join(base, "transient"),
		nil,
	)
	return New(store, "ffmpeg", nil, WithExecutor(exec)), store
}

func TestNormalizeWAVPassesThrough(t *testing.T) {
	exec := &fakeExecutor{}
	n, _ := newTestNormalizer(t, exec)

	result, err := n.Normalize(context.Background(), "id", "/audio/song.WAV")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if result.Created {
		t.Error("wav input must not create an artifact")
	}
	if result.Path != "/audio/song.WAV" {
		t.Errorf("expected original path back, got %q", result.Path)
	}
	if exec.binary != "" {
		t.Errorf("wav input must not invoke the decoder, ran %q", exec.binary)
	}
}

func TestNormalizeDecodesToTransientWAV(t *testing.T) {
	exec := &fakeExecutor{writeTo: true}
	n, store := newTestNormalizer(t, exec)

	result, err := n.Normalize(context.Background(), "id", "/audio/song.mp3")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !result.Created {
		t.Fatal("expected a transient artifact")
	}
	wantPath := filepath.Join(store.Dir(storage.ScopeTransient), "id_normalized.wav")
	if result.Path != wantPath {
		t.Errorf("unexpected output path: %q", result.Path)
	}
	if _, err := os.Stat(result.Path); err != nil {
		t.Errorf("expected output on disk: %v", err)
	}
	joined := strings.Join(exec.args, " ")
	if !strings.Contains(joined, "-c:a pcm_s16le") {
		t.Errorf("expected canonical codec in args %v", exec.args)
	}
	if strings.Contains(joined, "-ar") || strings.Contains(joined, "-ac") {
		t.Errorf("normalizer must not resample or downmix, args %v", exec.args)
	}
}

func TestNormalizeDecodeFailure(t *testing.T) {
	exec := &fakeExecutor{err: errors.New("unsupported codec")}
	n, _ := newTestNormalizer(t, exec)

	_, err := n.Normalize(context.Background(), "id", "/audio/song.ogg")
	if err == nil {
		t.Fatal("expected decode error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Errorf("expected external tool marker, got %v", err)
	}
}

func TestNormalizeMissingOutput(t *testing.T) {
	// The decoder exits zero but never writes the file.
	exec := &fakeExecutor{}
	n, _ := newTestNormalizer(t, exec)

	if _, err := n.Normalize(context.Background(), "id", "/audio/song.mp3"); err == nil {
		t.Fatal("expected error when no output is produced")
	}
}
