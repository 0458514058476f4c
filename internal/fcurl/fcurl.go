package main

// Одиночная загрузка url с замером скорости, тем же клиентом что и fspeed run.

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"fortio.org/cli"
	"fortio.org/fspeed/internal/bincommon"
	"fortio.org/fspeed/pkg/log"
	"fortio.org/fspeed/pkg/speedtest"
)

// Fetch загружает u и возвращает число байт и время до конца тела.
func Fetch(ctx context.Context, client *http.Client, u string) (int64, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Cache-Control", "no-store")
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("http status %d", resp.StatusCode)
	}
	n, err := io.Copy(io.Discard, resp.Body)
	return n, time.Since(start), err
}

// fetchContext ограничивает ctx таймаутом, 0 означает без ограничения.
func fetchContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

func Main() int {
	cli.ProgramName = "fspeed-curl"
	cli.ArgsHelp = "url"
	cli.MinArgs = 1
	cli.Main()
	u := flag.Arg(0)
	// url проверяется как базовый адрес цели (только http и https)
	o, err := bincommon.SharedOptions(u)
	if err != nil {
		return log.FErrf("Неверные опции: %v", err)
	}
	log.Debugf("Запуск curl с %+v", o)
	ctx, cancel := fetchContext(context.Background(), o.RequestTimeout)
	defer cancel()
	n, elapsed, err := Fetch(ctx, o.Client, u)
	if err != nil {
		return log.FErrf("Ошибка загрузки %s: %v", u, err)
	}
	fmt.Printf("%d байт за %v: %.2f Mbps\n", n, elapsed.Round(time.Millisecond), speedtest.Mbps(n, elapsed))
	return 0
}

func main() {
	os.Exit(Main())
}
