//go:build release

package log

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/dixieflatline76/wallsource/config"
)

// init sends release logs to a rotating file under the data directory.
// Without a usable directory they stay on stderr.
func init() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	dataDir, err := config.DataDir()
	if err == nil {
		w, ferr := newRotatingFile(dataDir)
		if ferr == nil {
			log.SetOutput(w)
			return
		}
		err = ferr
	}
	log.Printf("Logging to stderr: %v", err)
}

// SetOutput redirects the standard logger, mostly for tests.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}

// Print calls the standard log.Print()
func Print(v ...interface{}) {
	log.Output(2, fmt.Sprint(v...))
}

// Printf calls the standard log.Printf()
func Printf(format string, v ...interface{}) {
	log.Output(2, fmt.Sprintf(format, v...))
}

// Println calls the standard log.Println()
func Println(v ...interface{}) {
	log.Output(2, fmt.Sprintln(v...))
}

// Debug is a no-op in release builds
func Debug(v ...interface{}) {}

// Debugf is a no-op in release builds
func Debugf(format string, v ...interface{}) {}

// Fatal calls the standard log.Fatal()
func Fatal(v ...interface{}) {
	log.Output(2, fmt.Sprint(v...))
	os.Exit(1)
}

// Fatalf calls the standard log.Fatalf()
func Fatalf(format string, v ...interface{}) {
	log.Output(2, fmt.Sprintf(format, v...))
	os.Exit(1)
}
