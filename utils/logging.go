package utils

import (
	"fmt"
	"log"
	"os"

	"golang.org/x/crypto/ssh/terminal"
)

const logFlags = log.Ldate | log.Ltime | log.Lshortfile

func InRed(str string) string {
	return fmt.Sprintf("\x1b[31;1m%s\x1b[0m", str)
}

func InGreen(str string) string {
	return fmt.Sprintf("\x1b[32;1m%s\x1b[0m", str)
}

// NewLoggers returns the Info and Error loggers used by the binaries.
// The error prefix is red when stderr is a terminal.
func NewLoggers(prefix string) (info *log.Logger, errLog *log.Logger) {
	errPrefix := prefix
	if terminal.IsTerminal(int(os.Stderr.Fd())) {
		errPrefix = InRed(prefix)
	}
	info = log.New(os.Stdout, prefix, logFlags)
	errLog = log.New(os.Stderr, errPrefix, logFlags)
	return info, errLog
}
