package registry

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// fakeIPFS mimics the daemon endpoints the client uses.
func fakeIPFS(t *testing.T) (*httptest.Server, map[string][]byte) {
	t.Helper()
	blobs := make(map[string][]byte)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v0/add", func(w http.ResponseWriter, r *http.Request) {
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "file field required", http.StatusBadRequest)
			return
		}
		defer file.Close()
		payload, err := io.ReadAll(file)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		sum := sha256.Sum256(payload)
		hash := "Qm" + hex.EncodeToString(sum[:8])
		blobs[hash] = payload
		_ = json.NewEncoder(w).Encode(map[string]any{"Name": "payload", "Hash": hash, "Size": len(payload)})
	})
	mux.HandleFunc("/api/v0/cat", func(w http.ResponseWriter, r *http.Request) {
		payload, ok := blobs[r.URL.Query().Get("arg")]
		if !ok {
			http.Error(w, `{"Message":"merkledag: not found"}`, http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(payload)
	})
	return httptest.NewServer(mux), blobs
}

func TestIPFSUploadAndFetch(t *testing.T) {
	srv, _ := fakeIPFS(t)
	defer srv.Close()

	c, err := NewIPFSRegistry(srv.URL, time.Second)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	address, err := c.Upload(context.Background(), bytes.NewReader([]byte("book bytes")))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if address == "" {
		t.Fatal("empty address")
	}

	rc, err := c.Fetch(context.Background(), address)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	defer rc.Close()
	payload, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read payload: %v", err)
	}
	if string(payload) != "book bytes" {
		t.Fatalf("payload round trip mismatch: %q", payload)
	}
}

func TestIPFSFetchUnknownAddress(t *testing.T) {
	srv, _ := fakeIPFS(t)
	defer srv.Close()

	c, _ := NewIPFSRegistry(srv.URL, time.Second)
	if _, err := c.Fetch(context.Background(), "QmUnknown"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIPFSUploadDaemonDown(t *testing.T) {
	srv, _ := fakeIPFS(t)
	srv.Close() // daemon unavailable

	c, _ := NewIPFSRegistry(srv.URL, time.Second)
	if _, err := c.Upload(context.Background(), bytes.NewReader([]byte("x"))); err == nil {
		t.Fatal("expected upload to fail when the daemon is unreachable")
	}
}
