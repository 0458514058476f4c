// Пакет version содержит информацию о версии и сборке fspeed.
// Разбор BuildInfo выполняется библиотекой [fortio.org/version].
package version // import "fortio.org/fspeed/version"

import (
	"fortio.org/version"
)

var (
	// Следующие переменные вычисляются в init().
	shortVersion = "dev"
	longVersion  = "unknown long"
	fullVersion  = "unknown full"
)

// Short возвращает версию Major.Minor.Patch (git тег без ведущего v) или "dev",
// когда бинарник собран не из тега. Используется в User-Agent и в JSON отчёте.
func Short() string {
	return shortVersion
}

// Long возвращает версию и информацию о сборке: "X.Y.Z hash go-version processor os".
func Long() string {
	return longVersion
}

// Full возвращает Long плюс все зависимые модули с версиями.
func Full() string {
	return fullVersion
}

func init() { //nolint:gochecknoinits // версия нужна до main
	shortVersion, longVersion, fullVersion = version.FromBuildInfoPath("fortio.org/fspeed")
}
