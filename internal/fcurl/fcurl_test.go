package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fortio.org/assert"
	"fortio.org/fspeed/pkg/target"
)

func TestFetch(t *testing.T) {
	mux := http.NewServeMux()
	target.New().Register(mux, "")
	srv := httptest.NewServer(mux)
	defer srv.Close()
	n, elapsed, err := Fetch(context.Background(), srv.Client(), srv.URL+"/__down?bytes=12345")
	assert.NoError(t, err)
	assert.Equal(t, int64(12345), n)
	assert.True(t, elapsed > 0, "elapsed")
	_, _, err = Fetch(context.Background(), srv.Client(), srv.URL+"/__down?bytes=x")
	assert.Error(t, err)
}

func TestFetchContextZeroTimeout(t *testing.T) {
	ctx, cancel := fetchContext(context.Background(), 0)
	defer cancel()
	_, ok := ctx.Deadline()
	assert.False(t, ok, "0 без дедлайна")
	assert.NoError(t, ctx.Err())
	ctx2, cancel2 := fetchContext(context.Background(), time.Minute)
	defer cancel2()
	_, ok = ctx2.Deadline()
	assert.True(t, ok, "дедлайн")
}
