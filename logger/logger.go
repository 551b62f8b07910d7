// Package logger provides the application's leveled loggers.
package logger

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

var (
	Info  *log.Logger
	Warn  *log.Logger
	Error *log.Logger
	Debug *log.Logger
)

const flags = log.Ldate | log.Ltime | log.Lshortfile

// init wires every level to stdout so packages can log before (or without)
// InitLogger being called, including from tests.
func init() {
	setOutput(os.Stdout)
}

func setOutput(w io.Writer) {
	Info = log.New(w, "INFO: ", flags)
	Warn = log.New(w, "WARN: ", flags)
	Error = log.New(w, "ERROR: ", flags)
	Debug = log.New(w, "DEBUG: ", flags)
}

// InitLogger additionally writes every level to a timestamped file in dir.
// An empty dir keeps stdout only.
func InitLogger(dir string) error {
	if dir == "" {
		setOutput(os.Stdout)
		return nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	name := filepath.Join(dir, time.Now().Format("2006-01-02_15-04-05")+".log")
	file, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600) // #nosec
	if err != nil {
		return err
	}
	setOutput(io.MultiWriter(os.Stdout, file))
	return nil
}

// SetLogLevel discards Debug output in production.
func SetLogLevel(env string) {
	if env == "production" {
		Debug.SetOutput(io.Discard)
	}
}

// Silence discards all output. Intended for tests.
func Silence() {
	setOutput(io.Discard)
}
