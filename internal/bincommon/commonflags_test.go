package bincommon

import (
	"flag"
	"net/http"
	"testing"
	"time"

	"fortio.org/assert"
	"fortio.org/fspeed/pkg/speedtest"
)

func TestParseSizes(t *testing.T) {
	sizes, err := ParseSizes(" 1000, 2000 ,3000,")
	assert.NoError(t, err)
	assert.Equal(t, []int64{1000, 2000, 3000}, sizes)
	assert.Equal(t, "1000,2000,3000", FormatSizes(sizes))
	for _, bad := range []string{"", ",", "0", "-5", "abc", "2000000000"} {
		_, err = ParseSizes(bad)
		assert.Error(t, err, bad)
	}
	d, err := ParseSizes(FormatSizes(speedtest.DefaultDownloadSizes()))
	assert.NoError(t, err)
	assert.Equal(t, speedtest.DefaultDownloadSizes(), d)
}

func TestDynamicValidators(t *testing.T) {
	assert.Error(t, flag.Set("ping-count", "0"))
	assert.Error(t, flag.Set("ping-pause", "-1s"))
	assert.Error(t, flag.Set("upload-sizes", "x"))
	assert.Error(t, flag.Set("max-speed", "0"))
	assert.Equal(t, int64(speedtest.DefaultPingCount), PingCount.Get())
	assert.NoError(t, flag.Set("ping-count", "7"))
	assert.NoError(t, flag.Set("stage-pause", "10ms"))
	assert.NoError(t, flag.Set("download-sizes", "100,200"))
	defer func() {
		_ = flag.Set("ping-count", "10")
		_ = flag.Set("stage-pause", speedtest.DefaultStagePause.String())
		_ = flag.Set("download-sizes", FormatSizes(speedtest.DefaultDownloadSizes()))
	}()
	var o speedtest.Options
	ApplyDynamic(&o)
	assert.Equal(t, 7, o.PingCount)
	assert.Equal(t, 10*time.Millisecond, o.StagePause)
	assert.Equal(t, []int64{100, 200}, o.DownloadSizes)
	assert.Equal(t, speedtest.DefaultUploadSizes(), o.UploadSizes)
}

func TestSharedOptions(t *testing.T) {
	o, err := SharedOptions(" http://localhost:8080/ ")
	assert.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", o.BaseURL)
	assert.Equal(t, speedtest.DefaultRequestTimeout, o.RequestTimeout)
	assert.True(t, o.Client != nil && o.Client != http.DefaultClient, "dedicated client")
	o, err = SharedOptions("")
	assert.NoError(t, err)
	assert.Equal(t, speedtest.DefaultBaseURL, o.BaseURL)
	_, err = SharedOptions("ftp://x")
	assert.Error(t, err)
	assert.False(t, IsSet("url"))
}

func TestNewHTTPClient(t *testing.T) {
	c, err := NewHTTPClient(true, false)
	assert.NoError(t, err)
	tr := c.Transport.(*http.Transport)
	assert.True(t, tr.TLSClientConfig.InsecureSkipVerify, "insecure")
	assert.Equal(t, 0, len(tr.TLSNextProto))
	assert.True(t, tr.TLSNextProto != nil, "h2 disabled by empty map")
	c, err = NewHTTPClient(false, true)
	assert.NoError(t, err)
	tr = c.Transport.(*http.Transport)
	assert.True(t, tr.TLSNextProto["h2"] != nil, "h2 configured")
}
