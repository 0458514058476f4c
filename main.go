package main

import (
	"os"

	"fortio.org/fspeed/internal/cli"
)

// Содержимое этого файла находится в internal/cli/fspeed_main.go, чтобы его можно было
// переиспользовать в вариантах fspeed, например с другим логгером (см. examples/custom_logger).

func main() {
	os.Exit(cli.FspeedMain(nil /* хук не нужен */))
}

// Main то же самое, что и выше, но для тестов testscript/txtar.
func Main() int {
	return cli.FspeedMain(nil /* хук не нужен */)
}
