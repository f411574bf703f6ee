package preflight

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"librarian/internal/deps"
	"librarian/internal/executor"
	"librarian/internal/library"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if !strings.Contains(result.Detail, "does not exist") {
		t.Fatalf("unexpected detail: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckDirectoryAccess("test", f); result.Passed {
		t.Fatal("expected failure for file path")
	}
	if result := CheckDirectoryAccess("test", " "); result.Passed || result.Detail != "not configured" {
		t.Fatalf("expected unconfigured failure, got %+v", result)
	}
}

type versionStub struct {
	version string
	err     error
}

func (v versionStub) Check(context.Context) (string, error) { return v.version, v.err }

func TestCheckTorrentClient(t *testing.T) {
	ok := CheckTorrentClient(context.Background(), versionStub{version: "v4.6.3"})
	if !ok.Passed || !strings.Contains(ok.Detail, "v4.6.3") {
		t.Fatalf("expected pass with version, got %+v", ok)
	}
	failed := CheckTorrentClient(context.Background(), versionStub{err: context.DeadlineExceeded})
	if failed.Passed || failed.Detail != "check timed out" {
		t.Fatalf("expected timeout failure, got %+v", failed)
	}
	failed = CheckTorrentClient(context.Background(), versionStub{err: errors.New("login rejected")})
	if failed.Passed || failed.Detail != "login rejected" {
		t.Fatalf("expected login failure, got %+v", failed)
	}
}

func TestCheckLibrary_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/me" || r.Header.Get("Authorization") != "Bearer good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	result := CheckLibrary(context.Background(), library.NewAudiobookshelf(srv.URL, "good-key", "lib", srv.Client()))
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckLibrary_BadKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	result := CheckLibrary(context.Background(), library.NewAudiobookshelf(srv.URL, "bad-key", "lib", srv.Client()))
	if result.Passed {
		t.Fatal("expected failure for bad key")
	}
	if !strings.Contains(result.Detail, "rejected the api key") {
		t.Fatalf("unexpected detail: %s", result.Detail)
	}
}

func TestCheckRemoteHostRequiresHost(t *testing.T) {
	result := CheckRemoteHost(context.Background(), executor.SSHOptions{})
	if result.Passed || !strings.Contains(result.Detail, "remote.host") {
		t.Fatalf("expected missing host failure, got %+v", result)
	}
}

func TestFromDependency(t *testing.T) {
	if r := FromDependency(deps.Status{Name: "sh", Command: "/bin/sh", Available: true}); !r.Passed || r.Detail != "/bin/sh" {
		t.Fatalf("unexpected available result: %+v", r)
	}
	if r := FromDependency(deps.Status{Name: "x", Detail: "binary \"x\" not found", Optional: true}); !r.Passed || !strings.HasSuffix(r.Detail, "(optional)") {
		t.Fatalf("expected optional dependency to pass, got %+v", r)
	}
	if r := FromDependency(deps.Status{Name: "x", Detail: "missing"}); r.Passed {
		t.Fatalf("expected required dependency to fail, got %+v", r)
	}
}

func TestFailed(t *testing.T) {
	failed := Failed([]Result{{Name: "a", Passed: true}, {Name: "b"}})
	if len(failed) != 1 || failed[0].Name != "b" {
		t.Fatalf("unexpected failed results: %+v", failed)
	}
}
