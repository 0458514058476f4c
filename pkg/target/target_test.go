package target

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"fortio.org/assert"
)

func newServer(t *testing.T, h *Handler) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux, "")
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"", 0, true},
		{"0", 0, true},
		{"1000", 1000, true},
		{"-1", 0, false},
		{"abc", 0, false},
		{"2001", 0, false},
	}
	for _, tst := range tests {
		n, ok := ParseBytes(tst.in, 2000)
		assert.Equal(t, tst.want, n, tst.in)
		assert.Equal(t, tst.ok, ok, tst.in)
	}
}

func TestDown(t *testing.T) {
	h := New()
	srv := newServer(t, h)
	resp, err := http.Get(srv.URL + DownPath + "?bytes=200000")
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	assert.NoError(t, err)
	assert.Equal(t, 200000, len(data))
	assert.True(t, bytes.Equal(data, make([]byte, 200000)), "zero payload")
	assert.Equal(t, int64(200000), h.BytesSent())
}

func TestDownZeroAndInvalid(t *testing.T) {
	h := &Handler{MaxDownloadBytes: 10}
	srv := newServer(t, h)
	resp, err := http.Get(srv.URL + DownPath + "?bytes=0")
	assert.NoError(t, err)
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, len(data))
	resp, err = http.Get(srv.URL + DownPath + "?bytes=11")
	assert.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, err = http.Post(srv.URL+DownPath, "text/plain", strings.NewReader("x"))
	assert.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, int64(3), h.Requests())
}

func TestUp(t *testing.T) {
	h := New()
	srv := newServer(t, h)
	resp, err := http.Post(srv.URL+UpPath, "application/octet-stream", bytes.NewReader(make([]byte, 12345)))
	assert.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "12345", string(body))
	assert.Equal(t, int64(12345), h.BytesReceived())
}

func TestUpLimit(t *testing.T) {
	h := &Handler{MaxUploadBytes: 100}
	srv := newServer(t, h)
	resp, err := http.Post(srv.URL+UpPath, "application/octet-stream", bytes.NewReader(make([]byte, 1000)))
	assert.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
