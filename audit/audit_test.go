package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreRoundtrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess := Session{ID: "sess-1", Policy: "whitelist", Roots: []string{"/workspace"}}
	if err := s.BeginSession(ctx, sess); err != nil {
		t.Fatal(err)
	}

	records := []Record{
		{
			SessionID: "sess-1", Seq: 1, Kind: "exec", Origin: "native",
			Target: "ls -la", OK: true, ExitCode: 0, ErrorKind: "none",
			Duration: 42 * time.Millisecond,
		},
		{
			SessionID: "sess-1", Seq: 2, Kind: "read", Origin: "simple_tag",
			Target: "notes.txt", OK: false, ExitCode: -1, ErrorKind: "io_error",
			Detail: "file not found",
		},
	}
	for _, r := range records {
		if err := s.Record(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.SessionRecords(ctx, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if got[0].Seq != 1 || got[0].Kind != "exec" || !got[0].OK || got[0].Duration != 42*time.Millisecond {
		t.Errorf("record[0] = %+v", got[0])
	}
	if got[1].Seq != 2 || got[1].OK || got[1].ExitCode != -1 || got[1].Detail != "file not found" {
		t.Errorf("record[1] = %+v", got[1])
	}
}

func TestBeginSessionDuplicate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess := Session{ID: "dup", Policy: "sandbox", Roots: []string{"/w"}}
	if err := s.BeginSession(ctx, sess); err != nil {
		t.Fatal(err)
	}
	if err := s.BeginSession(ctx, sess); err == nil {
		t.Error("duplicate session id accepted")
	}
}

func TestSessionRecordsEmpty(t *testing.T) {
	s := openTestStore(t)

	got, err := s.SessionRecords(context.Background(), "no-such-session")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("records = %+v, want none", got)
	}
}

func TestOpenIdempotentSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	ctx := context.Background()

	s1, err := Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s1.BeginSession(ctx, Session{ID: "a", Policy: "whitelist", Roots: []string{"/w"}}); err != nil {
		t.Fatal(err)
	}
	if err := s1.Close(); err != nil {
		t.Fatal(err)
	}

	// Reopening applies the schema again without clobbering data.
	s2, err := Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s2.Close() }()
	if err := s2.BeginSession(ctx, Session{ID: "a", Policy: "whitelist", Roots: []string{"/w"}}); err == nil {
		t.Error("existing session survived reopen but re-registering succeeded")
	}
}
