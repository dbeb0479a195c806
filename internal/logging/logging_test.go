package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		want    logrus.Level
		wantErr bool
	}{
		{name: "debug", level: "debug", want: logrus.DebugLevel},
		{name: "warn", level: "warn", want: logrus.WarnLevel},
		{name: "upper case", level: "ERROR", want: logrus.ErrorLevel},
		{name: "unknown", level: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.level, "")
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if log.Level != tt.want {
				t.Errorf("level = %v, want %v", log.Level, tt.want)
			}
			if log.Out != os.Stderr {
				t.Error("blank path does not log to stderr")
			}
		})
	}
}

func TestNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "racerpatch.log")

	log, err := New("info", path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	log.WithField("op", "font0").Info("patched")
	log.Debug("hidden")
	log.Out.(*os.File).Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	if !strings.Contains(got, "level=info msg=patched op=font0") {
		t.Errorf("log = %q", got)
	}
	if strings.Contains(got, "hidden") {
		t.Error("debug entry written at info level")
	}
}

func TestNewBadFile(t *testing.T) {
	if _, err := New("info", filepath.Join(t.TempDir(), "missing", "x.log")); err == nil {
		t.Fatal("New() error = nil")
	}
}
