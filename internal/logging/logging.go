// Package logging configures the process-wide standard logger.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects the log destination. An empty File logs to stderr.
type Options struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// Setup points the standard logger at opts and returns a closer for the destination.
func Setup(opts Options) io.Closer {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.LUTC)
	w := Writer(opts)
	log.SetOutput(w)
	if c, ok := w.(io.Closer); ok {
		return c
	}
	return nopCloser{}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Writer returns the destination for opts: a rotating file, or stderr.
func Writer(opts Options) io.Writer {
	if opts.File == "" {
		return os.Stderr
	}
	return &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		Compress:   true,
	}
}
