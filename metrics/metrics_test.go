package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"fortio.org/assert"
	"fortio.org/fspeed/pkg/speedtest"
)

type fakeSource struct {
	st   speedtest.State
	runs int64
}

func (f fakeSource) Snapshot() speedtest.State { return f.st }
func (f fakeSource) Runs() int64               { return f.runs }

func TestExporter(t *testing.T) {
	src := fakeSource{
		st: speedtest.State{
			Phase:   speedtest.Download,
			Results: speedtest.Results{Ping: 12, Jitter: 1.5, Download: 87.25},
		},
		runs: 3,
	}
	rec := httptest.NewRecorder()
	Exporter(src)(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	for _, want := range []string{
		"\nfspeed_running 1\n",
		"\nfspeed_runs_total 3\n",
		"\nfspeed_ping_ms 12\n",
		"\nfspeed_jitter_ms 1.5\n",
		"\nfspeed_download_mbps 87.25\n",
		"\nfspeed_upload_mbps 0\n",
		"# TYPE fspeed_runs_total counter",
		"fspeed_num_fd ",
		"fspeed_goroutines ",
	} {
		assert.True(t, strings.Contains(body, want), "missing", want, "in", body)
	}
}

func TestIdleNotRunning(t *testing.T) {
	var sb strings.Builder
	Write(&sb, fakeSource{st: speedtest.State{Phase: speedtest.Complete}})
	assert.True(t, strings.Contains(sb.String(), "\nfspeed_running 0\n"), sb.String())
}
