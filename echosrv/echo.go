// Минимальный сервер цели теста скорости: только /__down и /__up,
// без API виджета и без стандартного вывода по умолчанию.

package main

import (
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"fortio.org/fspeed/pkg/log"
	"fortio.org/fspeed/pkg/target"
	"fortio.org/fspeed/version"
)

var (
	port     = flag.String("port", "8080", "http порт по умолчанию, можно указать порт или адрес:порт")
	maxBytes = flag.Int64("max-bytes", target.DefaultMaxDownloadBytes, "Предел ?bytes= для /__down")
	certFlag = flag.String("cert", "", "`Путь` к файлу сертификата для серверного TLS")
	keyFlag  = flag.String("key", "", "`Путь` к файлу ключа, соответствующего -cert")
)

func main() {
	flag.Parse()
	if len(os.Args) >= 2 && strings.Contains(os.Args[1], "version") {
		fmt.Println(version.Full())
		os.Exit(0)
	}
	h := target.New()
	h.MaxDownloadBytes = *maxBytes
	mux := http.NewServeMux()
	h.Register(mux, "")
	addr := *port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	var err error
	if *certFlag != "" && *keyFlag != "" {
		err = srv.ListenAndServeTLS(*certFlag, *keyFlag)
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		os.Exit(log.FErrf("Ошибка сервера на %s: %v", addr, err))
	}
}
