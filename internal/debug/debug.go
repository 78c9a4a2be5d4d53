// Package debug provides opt-in diagnostic logging to a rotated file.
// Enabled by setting SPOOL_DEBUG=1; otherwise every call is a no-op, so call
// sites never guard themselves.
package debug

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu     sync.Mutex
	logger *log.Logger
)

// Enabled reports whether debug logging is on.
func Enabled() bool {
	return os.Getenv("SPOOL_DEBUG") != "" && os.Getenv("SPOOL_DEBUG") != "0"
}

// Init points the debug log at a file under stateDir. Safe to call more than
// once; later calls win. Without Init, an enabled logger writes to stderr.
func Init(stateDir string) {
	if !Enabled() {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	logger = log.New(&lumberjack.Logger{
		Filename:   filepath.Join(stateDir, "debug.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     14, // days
	}, "", log.LstdFlags|log.Lmicroseconds)
}

// Logf writes one formatted line to the debug log when enabled.
func Logf(format string, args ...any) {
	if !Enabled() {
		return
	}
	mu.Lock()
	l := logger
	mu.Unlock()
	if l == nil {
		fmt.Fprintf(os.Stderr, "spool: "+format+"\n", args...)
		return
	}
	l.Printf(format, args...)
}
