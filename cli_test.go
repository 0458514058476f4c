package main

import (
	"os"
	"testing"

	"fortio.org/testscript"
)

func TestMain(m *testing.M) {
	// Запускает тесты testdata/cli_test.txtar (https://github.com/fortio/testscript#testscript).
	os.Exit(testscript.RunMain(m, map[string]func() int{
		"fspeed": Main,
	}))
}

func TestFspeedCli(t *testing.T) {
	testscript.Run(t, testscript.Params{Dir: "testdata"})
}
