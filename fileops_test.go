package toolpipe

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/axekit/toolpipe/internal/confine"
)

func TestConfinePathSentinel(t *testing.T) {
	dir := t.TempDir()
	roots := []string{dir}
	opts := confine.Options{WorkDir: dir}

	abs, err := confinePath("ok.txt", roots, opts)
	if err != nil || abs != filepath.Join(dir, "ok.txt") {
		t.Fatalf("confinePath = %q, %v", abs, err)
	}

	_, err = confinePath("/etc/passwd", roots, opts)
	if !errors.Is(err, ErrPathOutsideRoots) {
		t.Fatalf("outside roots: err = %v, want ErrPathOutsideRoots", err)
	}
	var denied *PathDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("error %v is not a *PathDeniedError", err)
	}
	if denied.Path != "/etc/passwd" {
		t.Errorf("PathDeniedError.Path = %q", denied.Path)
	}

	_, err = confinePath("../escape", roots, opts)
	if !errors.Is(err, ErrPathOutsideRoots) {
		t.Fatalf("traversal: err = %v, want ErrPathOutsideRoots", err)
	}
	if errors.As(err, &denied); !strings.Contains(denied.Reason, "traversal") {
		t.Errorf("traversal reason = %q", denied.Reason)
	}
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	roots := []string{dir}
	opts := confine.Options{WorkDir: dir}

	if err := os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := readFile("hello.txt", roots, opts, 1<<20)
	if !res.OK || res.Output != "hello" || res.Truncated {
		t.Errorf("read result = %+v", res)
	}
	if res.Detail != "read 5 bytes" {
		t.Errorf("detail = %q", res.Detail)
	}
	if res.ExitCode != noExitCode {
		t.Errorf("exit code = %d, want %d", res.ExitCode, noExitCode)
	}
}

func TestReadFileTruncation(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "big.txt"), []byte(strings.Repeat("x", 100)), 0o644); err != nil {
		t.Fatal(err)
	}

	res := readFile("big.txt", []string{dir}, confine.Options{WorkDir: dir}, 10)
	if !res.OK {
		t.Fatalf("result = %+v", res)
	}
	if !res.Truncated || len(res.Output) != 10 {
		t.Errorf("truncation: Truncated=%v len=%d", res.Truncated, len(res.Output))
	}
	if !strings.Contains(res.Detail, "truncated") {
		t.Errorf("detail = %q", res.Detail)
	}
}

func TestReadFileFailures(t *testing.T) {
	dir := t.TempDir()
	roots := []string{dir}
	opts := confine.Options{WorkDir: dir}

	res := readFile("missing.txt", roots, opts, 1024)
	if res.OK || res.Kind != ErrorIO || res.Detail != "file not found" {
		t.Errorf("missing file result = %+v", res)
	}

	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	res = readFile("sub", roots, opts, 1024)
	if res.OK || res.Kind != ErrorIO || res.Detail != "is a directory" {
		t.Errorf("directory result = %+v", res)
	}

	res = readFile("/etc/passwd", roots, opts, 1024)
	if res.OK || res.Kind != ErrorPathOutsideRoots {
		t.Errorf("outside-roots result = %+v", res)
	}

	res = readFile(dir+"/../escape.txt", roots, opts, 1024)
	if res.OK || res.Kind != ErrorPathOutsideRoots {
		t.Errorf("traversal result = %+v", res)
	}
	if !strings.Contains(res.Detail, "traversal") {
		t.Errorf("traversal detail = %q", res.Detail)
	}
}

func TestWriteFileVerified(t *testing.T) {
	dir := t.TempDir()
	roots := []string{dir}
	opts := confine.Options{WorkDir: dir}

	res := writeFile("out.txt", "hello", roots, opts, false)
	if !res.OK {
		t.Fatalf("write result = %+v", res)
	}
	if res.Output != "wrote 5 bytes to out.txt" {
		t.Errorf("output = %q", res.Output)
	}

	// The write is verified against the filesystem, not just reported.
	data, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Errorf("file content = %q, want %q", data, "hello")
	}
}

func TestWriteFileCreatesDirectories(t *testing.T) {
	dir := t.TempDir()

	res := writeFile("a/b/c.txt", "deep", []string{dir}, confine.Options{WorkDir: dir}, false)
	if !res.OK {
		t.Fatalf("write result = %+v", res)
	}
	data, err := os.ReadFile(filepath.Join(dir, "a", "b", "c.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "deep" {
		t.Errorf("file content = %q", data)
	}
}

func TestWriteFileTruncatesExisting(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("old content, quite long"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := writeFile("f.txt", "new", []string{dir}, confine.Options{WorkDir: dir}, false)
	if !res.OK {
		t.Fatalf("write result = %+v", res)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "f.txt"))
	if string(data) != "new" {
		t.Errorf("file content = %q, want overwrite", data)
	}
}

func TestAppendFile(t *testing.T) {
	dir := t.TempDir()
	roots := []string{dir}
	opts := confine.Options{WorkDir: dir}

	if res := writeFile("log.txt", "one\n", roots, opts, true); !res.OK {
		t.Fatalf("first append = %+v", res)
	}
	res := writeFile("log.txt", "two\n", roots, opts, true)
	if !res.OK {
		t.Fatalf("second append = %+v", res)
	}
	if res.Output != "appended 4 bytes to log.txt" {
		t.Errorf("output = %q", res.Output)
	}

	data, _ := os.ReadFile(filepath.Join(dir, "log.txt"))
	if string(data) != "one\ntwo\n" {
		t.Errorf("file content = %q", data)
	}
}

func TestWriteFileOutsideRoots(t *testing.T) {
	dir := t.TempDir()

	res := writeFile("/tmp/unrelated-target.txt", "x", []string{dir}, confine.Options{WorkDir: dir}, false)
	if res.OK || res.Kind != ErrorPathOutsideRoots {
		t.Fatalf("result = %+v", res)
	}
	if _, err := os.Stat("/tmp/unrelated-target.txt"); err == nil {
		t.Error("denied write still created the file")
	}
}

func TestListDir(t *testing.T) {
	dir := t.TempDir()
	roots := []string{dir}
	opts := confine.Options{WorkDir: dir}

	if err := os.WriteFile(filepath.Join(dir, "a.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	res := listDir(".", roots, opts)
	if !res.OK {
		t.Fatalf("result = %+v", res)
	}
	if res.Detail != "2 entries" {
		t.Errorf("detail = %q", res.Detail)
	}
	if !strings.Contains(res.Output, "a.txt\n") {
		t.Errorf("output missing file entry: %q", res.Output)
	}
	if !strings.Contains(res.Output, "sub"+string(filepath.Separator)+"\n") {
		t.Errorf("output missing directory marker: %q", res.Output)
	}

	res = listDir("nope", roots, opts)
	if res.OK || res.Detail != "directory not found" {
		t.Errorf("missing dir result = %+v", res)
	}
}
