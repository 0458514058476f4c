package jrpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"fortio.org/assert"
	"fortio.org/sets"
)

type request struct {
	Name string `json:"name"`
}

type reply struct {
	Greeting string `json:"greeting"`
	Method   string `json:"method"`
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/teapot" {
			w.WriteHeader(http.StatusTeapot)
			_, _ = io.WriteString(w, `{"greeting":"short and stout"}`)
			return
		}
		if r.URL.Path == "/garbage" {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = io.WriteString(w, "not json")
			return
		}
		var req request
		body, _ := io.ReadAll(r.Body)
		if len(body) > 0 {
			_ = json.Unmarshal(body, &req)
		}
		_ = json.NewEncoder(w).Encode(reply{Greeting: "hello " + req.Name, Method: r.Method})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCallAndGet(t *testing.T) {
	srv := newServer(t)
	res, err := Call[reply](NewDestination(srv.URL+"/hi"), &request{Name: "fspeed"})
	assert.NoError(t, err)
	assert.Equal(t, "hello fspeed", res.Greeting)
	assert.Equal(t, http.MethodPost, res.Method)
	res, err = GetURL[reply](srv.URL + "/hi")
	assert.NoError(t, err)
	assert.Equal(t, http.MethodGet, res.Method)
	dest := NewDestination(srv.URL + "/hi")
	dest.Method = http.MethodDelete
	res, err = Get[reply](dest)
	assert.NoError(t, err)
	assert.Equal(t, http.MethodDelete, res.Method)
}

func TestNonOkCodes(t *testing.T) {
	srv := newServer(t)
	res, err := GetURL[reply](srv.URL + "/teapot")
	var fe *FetchError
	assert.True(t, errors.As(err, &fe), fmt.Sprint(err))
	assert.Equal(t, http.StatusTeapot, fe.Code)
	assert.Equal(t, "short and stout", res.Greeting)
	dest := NewDestination(srv.URL + "/teapot")
	dest.OkCodes = sets.New(http.StatusTeapot)
	res, err = Get[reply](dest)
	assert.NoError(t, err)
	assert.Equal(t, "short and stout", res.Greeting)
	res, err = GetURL[reply](srv.URL + "/garbage")
	assert.True(t, res == nil, "no result")
	assert.True(t, errors.As(err, &fe), fmt.Sprint(err))
	assert.Equal(t, http.StatusBadGateway, fe.Code)
	assert.True(t, strings.Contains(err.Error(), "not json"), err.Error())
}

func TestConnectionError(t *testing.T) {
	srv := newServer(t)
	u := srv.URL
	srv.Close()
	_, err := GetURL[reply](u)
	var fe *FetchError
	assert.True(t, errors.As(err, &fe), fmt.Sprint(err))
	assert.Equal(t, -1, fe.Code)
	assert.True(t, fe.Unwrap() != nil, "wrapped error")
}

func TestDebugSummary(t *testing.T) {
	assert.Equal(t, `a\nb`, EscapeBytes([]byte("a\nb")))
	assert.Equal(t, "short", DebugSummary([]byte("short"), 8))
	assert.Equal(t, "20: abcd...qrst", DebugSummary([]byte("abcdefghijklmnopqrst"), 8))
}
