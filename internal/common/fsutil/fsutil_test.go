package fsutil

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	if runtime.GOOS == "windows" {
		t.Setenv("USERPROFILE", home)
	}
	if got, err := ExpandHome("/tmp"); err != nil || got != "/tmp" {
		t.Fatalf("got %q err=%v", got, err)
	}
	if got, err := ExpandHome(""); err != nil || got != "" {
		t.Fatalf("got %q err=%v", got, err)
	}
	p, err := ExpandHome("~")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if p != home {
		t.Fatalf("expected %q, got %q", home, p)
	}
	exp, err := ExpandHome("~/musectl/input")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if want := filepath.Join(home, "musectl", "input"); runtime.GOOS != "windows" && exp != want {
		t.Fatalf("expected %q, got %q", want, exp)
	}
}

func TestEnsureDirsAndPathExists(t *testing.T) {
	d := t.TempDir()
	in := filepath.Join(d, "input")
	out := filepath.Join(d, "nested", "output")
	if PathExists(in) {
		t.Fatalf("input should not exist yet")
	}
	if err := EnsureDirs(in, "", out); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if !PathExists(in) || !PathExists(out) {
		t.Fatalf("dirs not created")
	}
	// idempotent
	if err := EnsureDirs(in, out); err != nil {
		t.Fatalf("ensure again: %v", err)
	}
}

func TestCopyFileOverwrites(t *testing.T) {
	d := t.TempDir()
	src := filepath.Join(d, "src.wav")
	dst := filepath.Join(d, "dst.wav")
	payload := []byte{0x52, 0x49, 0x46, 0x46, 0x00, 0xff, 0x10}
	if err := os.WriteFile(src, payload, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dst, []byte("stale content that is longer"), 0o644); err != nil {
		t.Fatal(err)
	}
	n, err := CopyFile(src, dst)
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	if n != int64(len(payload)) {
		t.Fatalf("copied %d bytes, want %d", n, len(payload))
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("content mismatch: %v", got)
	}
	entries, _ := os.ReadDir(d)
	if len(entries) != 2 {
		t.Fatalf("temp file left behind: %d entries", len(entries))
	}
}

func TestCopyFileMissingSource(t *testing.T) {
	d := t.TempDir()
	if _, err := CopyFile(filepath.Join(d, "nope"), filepath.Join(d, "out")); err == nil {
		t.Fatalf("expected error for missing source")
	}
}

func TestSameFile(t *testing.T) {
	d := t.TempDir()
	a := filepath.Join(d, "a")
	if err := os.WriteFile(a, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !SameFile(a, filepath.Join(d, ".", "a")) {
		t.Fatalf("expected same file")
	}
	if SameFile(a, filepath.Join(d, "b")) {
		t.Fatalf("missing file must not be same")
	}
}
