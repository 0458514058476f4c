// Пакет cli содержит main fspeed, чтобы его можно было переиспользовать
// в вариантах бинарника (например с другим логгером, см. examples/custom_logger).
package cli // import "fortio.org/fspeed/internal/cli"

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fortio.org/cli"
	"fortio.org/fspeed/internal/bincommon"
	"fortio.org/fspeed/internal/ui"
	"fortio.org/fspeed/pkg/log"
	"fortio.org/fspeed/pkg/speedtest"
	"fortio.org/fspeed/version"
	flog "fortio.org/log"
	"fortio.org/scli"
)

// ExitAborted код выхода при прерывании теста (Ctrl-C).
const ExitAborted = 130

var (
	portFlag = flag.String("port", "8080", "Порт serve, можно указать порт или адрес:порт")
	uiPath   = flag.String("ui-path", "/", "Префикс `пути` API виджета и страницы состояния")
	noTarget = flag.Bool("no-target", false, "Не обслуживать /__down и /__up в serve")
	maxDown  = flag.Int64("max-download-bytes", 0, "Предел одного ответа /__down в serve, 0 значение по умолчанию (100MB)")
	certFlag = flag.String("cert", "", "`Путь` к файлу сертификата для TLS в serve")
	keyFlag  = flag.String("key", "", "`Путь` к файлу ключа, соответствующего -cert")
	shutdown = flag.Duration("shutdown-timeout", 5*time.Second, "Сколько ждать завершения соединений при остановке serve")
)

const usageCommands = `команды:
	run      [url] выполнить тест скорости (ping, download, upload) против url или -url
	serve    запустить API виджета, цель /__down /__up и /metrics
	status   url  показать состояние удалённого fspeed serve
	start    url  запустить тест на удалённом fspeed serve
	stop     url  остановить тест на удалённом fspeed serve
	stats    прочитать задержки в мс из stdin и вывести ping и jitter
	version  вывести версию`

// FspeedMain выполняет команду и возвращает код выхода.
func FspeedMain(cfg *bincommon.Config) int {
	cli.ProgramName = "fspeed"
	cli.ArgsHelp = "[url]\n" + usageCommands
	cli.CommandBeforeFlags = true
	cli.CommandHelp = "{run|serve|status|start|stop|stats|version}"
	cli.MinArgs = 0
	cli.MaxArgs = 1
	scli.ServerMain()
	if cfg != nil && cfg.LoggerSetup != nil {
		cfg.LoggerSetup()
	}
	if bincommon.IsSet("loglevel") {
		// -loglevel из fortio.org/cli управляет и логгером fspeed
		log.SetLevel(log.ParseLevel(flog.GetLogLevel().String()))
	}
	arg := flag.Arg(0)
	switch cli.Command {
	case "run":
		return runCmd(arg, os.Stdout, os.Stderr)
	case "serve":
		return serveCmd()
	case "status", "start", "stop":
		if arg == "" {
			return log.FErrf("Команде %s нужен url сервера fspeed", cli.Command)
		}
		return remoteCmd(cli.Command, arg, os.Stdout)
	case "stats":
		return statsCmd(os.Stdin, os.Stdout)
	case "version":
		fmt.Println(version.Long())
		return 0
	default:
		return log.FErrf("Неизвестная команда %q, ожидается %s", cli.Command, cli.CommandHelp)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runCmd(baseURL string, out, errOut io.Writer) int {
	o, err := bincommon.SharedOptions(baseURL)
	if err != nil {
		return log.FErrf("Неверные опции: %v", err)
	}
	runner := speedtest.NewRunner(o)
	if !*bincommon.NoProgressFlag {
		NewRenderer(errOut, bincommon.MaxSpeed.Get()).Attach(runner)
	}
	ctx, cancel := signalContext()
	defer cancel()
	report, err := runner.Run(ctx)
	if err != nil {
		if errors.Is(err, speedtest.ErrAborted) {
			_, _ = fmt.Fprintln(errOut, "Тест прерван")
			return ExitAborted
		}
		return log.FErrf("Тест против %s не удался: %v", o.BaseURL, err)
	}
	if *bincommon.JSONFlag {
		b, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return log.FErrf("Не удалось создать json: %v", err)
		}
		_, _ = fmt.Fprintln(out, string(b))
		return 0
	}
	PrintSummary(out, report)
	return 0
}

// PrintSummary выводит итог теста как карточки результатов виджета.
func PrintSummary(out io.Writer, r *speedtest.Report) {
	_, _ = fmt.Fprintf(out, "Target   %s\n", r.Target)
	_, _ = fmt.Fprintf(out, "Ping     %.0f ms\n", r.Results.Ping)
	_, _ = fmt.Fprintf(out, "Jitter   %.1f ms\n", r.Results.Jitter)
	_, _ = fmt.Fprintf(out, "Download %.1f Mbps\n", r.Results.Download)
	_, _ = fmt.Fprintf(out, "Upload   %.1f Mbps\n", r.Results.Upload)
	_, _ = fmt.Fprintf(out, "Quality  %s: %s\n", r.Quality.Rating, r.Quality.Advice)
}

func selfURL(addr net.Addr, tls bool) string {
	_, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		port = *portFlag
	}
	scheme := "http"
	if tls {
		scheme = "https"
	}
	return scheme + "://localhost:" + port
}

func serveCmd() int {
	o, err := bincommon.SharedOptions("")
	if err != nil {
		return log.FErrf("Неверные опции: %v", err)
	}
	runner := speedtest.NewRunner(o)
	rs, err := ui.Serve(&ui.ServerConfig{
		Port:             *portFlag,
		UIPath:           *uiPath,
		Target:           !*noTarget,
		MaxDownloadBytes: *maxDown,
		MaxSpeed:         bincommon.MaxSpeed.Get(),
		Runner:           runner,
		Tune:             bincommon.ApplyDynamic,
		CertFile:         *certFlag,
		KeyFile:          *keyFlag,
	})
	if err != nil {
		return log.FErrf("Не удалось запустить сервер: %v", err)
	}
	if !*noTarget && !bincommon.IsSet("url") {
		// без -url сервер измеряет сам себя
		o.BaseURL = selfURL(rs.Addr, *certFlag != "" && *keyFlag != "")
		log.Infof("Цель теста по умолчанию %s", o.BaseURL)
	}
	_, _ = fmt.Printf("fspeed %s слушает %s\n", version.Short(), rs.Addr)
	ctx, cancel := signalContext()
	defer cancel()
	<-ctx.Done()
	log.Infof("Остановка сервера")
	sctx, scancel := context.WithTimeout(context.Background(), *shutdown)
	defer scancel()
	if err := rs.Shutdown(sctx); err != nil {
		return log.FErrf("Ошибка остановки сервера: %v", err)
	}
	return 0
}
