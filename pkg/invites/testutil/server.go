package testutil

import (
	"archive/zip"
	"bytes"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

// NewTestServer starts an httptest.Server, or skips the test if binding a port is not permitted.
func NewTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()

	l, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skip: cannot listen in sandbox: %v", err)
	}

	srv := &httptest.Server{
		Listener: l,
		Config:   &http.Server{Handler: handler},
	}
	srv.Start()
	t.Cleanup(srv.Close)
	return srv
}

// Entry is one file in an archive built by Zip.
type Entry struct {
	Name string
	Body []byte
	// Store writes the entry uncompressed so its size in the archive equals len(Body).
	Store bool
}

// Zip builds an in-memory archive from entries in order.
func Zip(t *testing.T, entries ...Entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		method := zip.Deflate
		if e.Store {
			method = zip.Store
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.Name, Method: method})
		if err != nil {
			t.Fatalf("zip entry %s: %v", e.Name, err)
		}
		if _, err := w.Write(e.Body); err != nil {
			t.Fatalf("zip write %s: %v", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

// Invitation returns a complete, valid invitation archive.
func Invitation(t *testing.T, page string) []byte {
	t.Helper()
	return Zip(t,
		Entry{Name: "index.html", Body: []byte(page)},
		Entry{Name: "merged.png", Body: []byte("merged-png")},
		Entry{Name: "thumb_1200x630.jpg", Body: []byte("thumb-jpg")},
	)
}
