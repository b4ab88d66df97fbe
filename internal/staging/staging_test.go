package staging

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"musectl/internal/logging"
)

func write(t *testing.T, p string, b []byte) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, b, 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestStageCopiesByteForByte(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "input")
	video := write(t, filepath.Join(root, "src", "video.mp4"), []byte("\x00\x00\x00\x18ftypmp42 video"))
	audio := write(t, filepath.Join(root, "src", "audio.wav"), []byte("RIFF\x24\x00\x00\x00WAVE"))

	s := NewStager(in, "/app/input", logging.Nop())
	staged, err := s.Stage(Job{VideoPath: video, AudioPath: audio})
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	if staged.ContainerVideo != "/app/input/video.mp4" || staged.ContainerAudio != "/app/input/audio.wav" {
		t.Fatalf("unexpected container paths: %+v", staged)
	}
	for src, dst := range map[string]string{video: staged.HostVideo, audio: staged.HostAudio} {
		want, _ := os.ReadFile(src)
		got, err := os.ReadFile(dst)
		if err != nil || !bytes.Equal(got, want) {
			t.Fatalf("%s not copied intact: %v", dst, err)
		}
	}
	if staged.Bytes <= 0 {
		t.Fatalf("bytes not counted")
	}
}

func TestStageOverwritesExisting(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "input")
	write(t, filepath.Join(in, "video.mp4"), []byte("old video from a previous job"))
	video := write(t, filepath.Join(root, "video.mp4"), []byte("new"))
	audio := write(t, filepath.Join(root, "audio.wav"), []byte("aud"))

	staged, err := NewStager(in, "/app/input", logging.Nop()).Stage(Job{VideoPath: video, AudioPath: audio})
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	got, _ := os.ReadFile(staged.HostVideo)
	if string(got) != "new" {
		t.Fatalf("existing file not overwritten: %q", got)
	}
}

func TestStageFileAlreadyInInputDir(t *testing.T) {
	in := filepath.Join(t.TempDir(), "input")
	video := write(t, filepath.Join(in, "video.mp4"), []byte("video"))
	audio := write(t, filepath.Join(in, "audio.wav"), []byte("audio"))
	staged, err := NewStager(in, "/app/input", logging.Nop()).Stage(Job{VideoPath: video, AudioPath: audio})
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	got, _ := os.ReadFile(staged.HostVideo)
	if string(got) != "video" {
		t.Fatalf("self-copy corrupted file: %q", got)
	}
}

func TestStageRejectsBadInputsBeforeCopying(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "input")
	good := write(t, filepath.Join(root, "audio.wav"), []byte("audio"))
	empty := write(t, filepath.Join(root, "empty.mp4"), nil)
	missing := filepath.Join(root, "missing.mp4")

	cases := []struct {
		name   string
		job    Job
		path   string
		reason InputReason
	}{
		{"missing video", Job{VideoPath: missing, AudioPath: good}, missing, ReasonMissing},
		{"missing audio", Job{VideoPath: good, AudioPath: missing}, missing, ReasonMissing},
		{"empty video", Job{VideoPath: empty, AudioPath: good}, empty, ReasonEmpty},
		{"directory", Job{VideoPath: root, AudioPath: good}, root, ReasonNotRegular},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewStager(in, "/app/input", logging.Nop()).Stage(tc.job)
			var ie *InputError
			if !errors.As(err, &ie) {
				t.Fatalf("expected InputError, got %v", err)
			}
			if ie.Path != tc.path || ie.Reason != tc.reason {
				t.Fatalf("got %s %q, want %s %q", ie.Path, ie.Reason, tc.path, tc.reason)
			}
			if entries, _ := os.ReadDir(in); len(entries) != 0 {
				t.Fatalf("input dir touched on invalid job: %d entries", len(entries))
			}
		})
	}
}

func TestStageRejectsSharedBaseName(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "input")
	video := write(t, filepath.Join(root, "a", "clip"), []byte("video"))
	audio := write(t, filepath.Join(root, "b", "clip"), []byte("audio"))

	s := NewStager(in, "/app/input", logging.Nop())
	_, err := s.Stage(Job{VideoPath: video, AudioPath: audio})
	var ie *InputError
	if !errors.As(err, &ie) || ie.Reason != ReasonNameClash || ie.Path != audio {
		t.Fatalf("expected name clash InputError, got %v", err)
	}
	if entries, _ := os.ReadDir(in); len(entries) != 0 {
		t.Fatalf("nothing may be staged on a name clash")
	}
}

func TestValidateTouchesNothing(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "input")
	video := write(t, filepath.Join(root, "video.mp4"), []byte("video"))
	audio := write(t, filepath.Join(root, "audio.wav"), []byte("audio"))
	if err := NewStager(in, "/app/input", logging.Nop()).Validate(Job{VideoPath: video, AudioPath: audio}); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if _, err := os.Stat(in); !os.IsNotExist(err) {
		t.Fatalf("validate created the input dir: %v", err)
	}
}
