package cli

import (
	"bytes"
	"encoding/json"
	"flag"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fortio.org/assert"
	"fortio.org/fspeed/internal/bincommon"
	"fortio.org/fspeed/internal/ui"
	"fortio.org/fspeed/pkg/speedtest"
	"fortio.org/fspeed/pkg/target"
)

func setFlags(t *testing.T, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		assert.NoError(t, flag.Set(k, v))
	}
}

func fastFlags(t *testing.T) {
	t.Helper()
	setFlags(t, map[string]string{
		"ping-count":     "4",
		"ping-pause":     "0s",
		"transfer-pause": "0s",
		"stage-pause":    "0s",
		"download-sizes": "1000,40000",
		"upload-sizes":   "1000,40000",
		"no-progress":    "false",
		"json":           "false",
	})
}

func newTarget(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	target.New().Register(mux, "")
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRunSummary(t *testing.T) {
	fastFlags(t)
	srv := newTarget(t)
	var out, errOut bytes.Buffer
	assert.Equal(t, 0, runCmd(srv.URL, &out, &errOut))
	s := out.String()
	assert.True(t, strings.Contains(s, "Target   "+srv.URL+"\n"), s)
	assert.True(t, strings.Contains(s, "Download "), s)
	assert.True(t, strings.Contains(s, "Quality  "), s)
	progress := errOut.String()
	assert.True(t, strings.Contains(progress, "Testing Latency..."), progress)
	assert.True(t, strings.Contains(progress, "Upload Speed"), progress)
	assert.True(t, strings.Contains(progress, "Test Complete"), progress)
}

func TestRunJSON(t *testing.T) {
	fastFlags(t)
	setFlags(t, map[string]string{"json": "true", "no-progress": "true"})
	defer setFlags(t, map[string]string{"json": "false", "no-progress": "false"})
	srv := newTarget(t)
	var out, errOut bytes.Buffer
	assert.Equal(t, 0, runCmd(srv.URL+"/", &out, &errOut))
	assert.Equal(t, "", errOut.String())
	var rep speedtest.Report
	assert.NoError(t, json.Unmarshal(out.Bytes(), &rep))
	assert.Equal(t, srv.URL, rep.Target)
	assert.Equal(t, 2, len(rep.Download.Samples))
	assert.True(t, rep.Download.Samples[0].WarmUp, "first sample is warm-up")
	assert.Equal(t, speedtest.Rate(rep.Results.Download), rep.Quality)
}

func TestRunFailure(t *testing.T) {
	fastFlags(t)
	var out, errOut bytes.Buffer
	assert.Equal(t, 1, runCmd("ftp://nowhere", &out, &errOut))
}

func TestStats(t *testing.T) {
	samples, err := ReadSamples(strings.NewReader("10\n20 30\n\n5\n100\n"))
	assert.NoError(t, err)
	s := Summarize(samples)
	assert.Equal(t, 5, s.Samples)
	assert.Equal(t, 3, s.Used)
	assert.Equal(t, 20., s.Ping)
	var b bytes.Buffer
	assert.Equal(t, 0, statsCmd(strings.NewReader("10 20 30 5 100"), &b))
	assert.Equal(t, "Ping 20 ms, Jitter 8.2 ms (5 samples, 3 used)\n"+
		"trimmed ms : count 3 avg 20 +/- 8.165 min 10 max 30 sum 60\n", b.String())
	assert.Equal(t, 8.165, s.Jitter)
	for _, bad := range []string{"10\nNaN\n", "1 +Inf", "-inf"} {
		_, err = ReadSamples(strings.NewReader(bad))
		assert.Error(t, err, bad)
	}
	_, err = ReadSamples(strings.NewReader("10\nNaN\n"))
	assert.True(t, strings.Contains(err.Error(), "строка 2"), err.Error())
	_, err = ReadSamples(strings.NewReader("1\nx\n"))
	assert.Error(t, err)
}

func TestBarAndLine(t *testing.T) {
	assert.Equal(t, "[##........]", Bar(25, 10))
	assert.Equal(t, "[..........]", Bar(-5, 10))
	assert.Equal(t, "[##########]", Bar(150, 10))
	r := NewRenderer(&bytes.Buffer{}, 300)
	r.Width = 4
	line := r.Line(speedtest.State{Phase: speedtest.Download, Progress: 50, CurrentSpeed: 150})
	assert.Equal(t, "Download Speed     [##..]  50%   150.0 Mbps (50% of 300)", line)
}

func TestRendererThrottle(t *testing.T) {
	var b bytes.Buffer
	r := NewRenderer(&b, 300)
	r.MinInterval = time.Hour
	r.Update(speedtest.State{Phase: speedtest.Idle})
	r.Update(speedtest.State{Phase: speedtest.Ping, Progress: 10})
	r.Update(speedtest.State{Phase: speedtest.Ping, Progress: 20})
	r.Update(speedtest.State{Phase: speedtest.Download})
	lines := strings.Split(strings.TrimSpace(b.String()), "\n")
	assert.Equal(t, 2, len(lines), b.String())
	assert.True(t, strings.HasPrefix(lines[0], "Testing Latency..."), lines[0])
}

func TestRemote(t *testing.T) {
	fastFlags(t)
	tgt := newTarget(t)
	o, err := bincommon.SharedOptions(tgt.URL)
	assert.NoError(t, err)
	runner := speedtest.NewRunner(o)
	mux, _, _ := ui.Handler(&ui.ServerConfig{UIPath: "/", Runner: runner})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	var out bytes.Buffer
	assert.Equal(t, 0, remoteCmd("status", srv.URL, &out))
	assert.True(t, strings.Contains(out.String(), `"phase": "idle"`), out.String())
	out.Reset()
	assert.Equal(t, 0, remoteCmd("start", strings.TrimPrefix(srv.URL, "http://"), &out))
	assert.True(t, strings.HasPrefix(out.String(), "started "), out.String())
	runner.Wait()
	out.Reset()
	assert.Equal(t, 0, remoteCmd("status", srv.URL, &out))
	assert.True(t, strings.Contains(out.String(), `"phase": "complete"`), out.String())
	out.Reset()
	assert.Equal(t, 0, remoteCmd("stop", srv.URL, &out))
	assert.Equal(t, "not running\n", out.String())
	// stop всегда возвращает в idle, результаты сохраняются
	out.Reset()
	assert.Equal(t, 0, remoteCmd("status", srv.URL, &out))
	var st ui.StatusReply
	assert.NoError(t, json.Unmarshal(out.Bytes(), &st))
	assert.Equal(t, speedtest.Idle, st.Phase)
	assert.True(t, st.Results.Download > 0, out.String())
	assert.True(t, st.Quality == nil, "no quality once idle")
	assert.Equal(t, 1, remoteCmd("status", "http://localhost:1", &out))
}

func TestAPIURL(t *testing.T) {
	assert.Equal(t, "http://h:8080/api/status", apiURL("h:8080", ui.StatusPath))
	assert.Equal(t, "https://h/x/api/stop", apiURL("https://h/x/", ui.StopPath))
}
