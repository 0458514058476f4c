package speedtest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"fortio.org/fspeed/pkg/log"
	"fortio.org/fspeed/pkg/stats"
)

// readBufferSize размер чтения тела; каждое чтение обновляет мгновенную скорость.
const readBufferSize = 64 * 1024

// Download загружает DownloadSizes по порядку, читая тело потоком.
// Первый файл прогревочный. Результат это среднее по остальным файлам.
func (s *Sampler) Download(ctx context.Context, rep Reporter) (*TransferResult, error) {
	if rep == nil {
		rep = nopReporter{}
	}
	sizes := s.o.DownloadSizes
	total := float64(len(sizes))
	res := &TransferResult{}
	var avg stats.Counter
	buf := make([]byte, readBufferSize)
	for i, size := range sizes {
		if err := aborted(ctx); err != nil {
			return res, err
		}
		onChunk := func(received int64, elapsed time.Duration) {
			if elapsed > 0 {
				rep.Speed(Mbps(received, elapsed))
			}
			fileProgress := min(float64(received)/float64(size), 1)
			rep.Progress((float64(i) + fileProgress) / total * 100)
		}
		received, elapsed, err := s.downloadOnce(ctx, size, buf, onChunk)
		if err != nil {
			if err = sampleFailed(ctx, "download", i, err); err != nil {
				return res, err
			}
			res.Errors++
		} else if elapsed > 0 && received > 0 {
			smp := Sample{Bytes: received, Duration: elapsed, Mbps: Mbps(received, elapsed), WarmUp: i == 0}
			res.Samples = append(res.Samples, smp)
			if !smp.WarmUp {
				avg.Record(smp.Mbps)
			}
			log.LogVf("download %d: %d байт за %v, %.2f Mbps", i, received, elapsed, smp.Mbps)
		}
		rep.Progress(float64(i+1) / total * 100)
		if err := pause(ctx, s.o.TransferPause); err != nil {
			return res, err
		}
	}
	res.Mbps = avg.Avg()
	avg.Log("download Mbps")
	log.S(log.Info, "download", log.Float64("mbps", res.Mbps),
		log.Int("samples", len(res.Samples)), log.Int("errors", res.Errors))
	return res, nil
}

// downloadOnce читает ответ на /__down?bytes=size до конца, вызывая onChunk после каждого чтения.
func (s *Sampler) downloadOnce(ctx context.Context, size int64, buf []byte,
	onChunk func(received int64, elapsed time.Duration),
) (int64, time.Duration, error) {
	rctx, cancel := s.requestContext(ctx)
	defer cancel()
	req, err := s.newRequest(rctx, http.MethodGet, s.DownURL(size), nil)
	if err != nil {
		return 0, 0, err
	}
	start := time.Now()
	resp, err := s.do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	var received int64
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			received += int64(n)
			onChunk(received, time.Since(start))
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return received, time.Since(start), rerr
		}
	}
	return received, time.Since(start), nil
}
