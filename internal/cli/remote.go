package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"fortio.org/fspeed/internal/jrpc"
	"fortio.org/fspeed/internal/ui"
	"fortio.org/fspeed/pkg/log"
)

// apiURL строит адрес API удалённого fspeed serve из базового url.
func apiURL(base, path string) string {
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return strings.TrimRight(base, "/") + "/" + path
}

func remoteCmd(cmd, base string, out io.Writer) int {
	switch cmd {
	case "status":
		st, err := jrpc.GetURL[ui.StatusReply](apiURL(base, ui.StatusPath))
		if err != nil {
			return log.FErrf("Ошибка запроса состояния %s: %v", base, err)
		}
		b, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return log.FErrf("Не удалось создать json: %v", err)
		}
		_, _ = fmt.Fprintln(out, string(b))
		return 0
	default:
		path := ui.StartPath
		if cmd == "stop" {
			path = ui.StopPath
		}
		dest := jrpc.NewDestination(apiURL(base, path))
		dest.Method = http.MethodPost
		rep, err := jrpc.Fetch[ui.StartReply](dest, nil)
		var fe *jrpc.FetchError
		if errors.As(err, &fe) && fe.Code == http.StatusConflict && rep != nil {
			return log.FErrf("Сервер %s: %s", base, rep.Message)
		}
		if err != nil {
			return log.FErrf("Ошибка %s на %s: %v", cmd, base, err)
		}
		if rep.RunID != "" {
			_, _ = fmt.Fprintf(out, "%s %s\n", rep.Message, rep.RunID)
		} else {
			_, _ = fmt.Fprintln(out, rep.Message)
		}
		return 0
	}
}
