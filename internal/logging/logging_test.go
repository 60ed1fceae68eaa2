package logging

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/natefinch/lumberjack.v2"
)

func TestWriter_Stderr(t *testing.T) {
	if w := Writer(Options{}); w != os.Stderr {
		t.Errorf("Writer with no file = %T, want os.Stderr", w)
	}
}

func TestWriter_RotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.log")
	w := Writer(Options{File: path, MaxSizeMB: 7, MaxBackups: 2})
	lj, ok := w.(*lumberjack.Logger)
	if !ok {
		t.Fatalf("Writer = %T, want *lumberjack.Logger", w)
	}
	if lj.MaxSize != 7 || lj.MaxBackups != 2 {
		t.Errorf("rotation = %d/%d", lj.MaxSize, lj.MaxBackups)
	}
}

func TestSetup_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.log")
	closer := Setup(Options{File: path, MaxSizeMB: 1})
	defer func() {
		log.SetOutput(os.Stderr)
	}()
	log.Printf("ingest: hello")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "ingest: hello") {
		t.Errorf("log file = %q", data)
	}
}
