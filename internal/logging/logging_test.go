package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/config"
	log "github.com/sirupsen/logrus"
)

func TestSetupWritesToRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "cards.log")
	closer, errSetup := Setup(config.LogConfig{
		Level:      "debug",
		Format:     "json",
		File:       path,
		MaxSizeMB:  1,
		MaxBackups: 1,
		MaxAgeDays: 1,
	})
	if errSetup != nil {
		t.Fatalf("setup: %v", errSetup)
	}
	t.Cleanup(func() {
		_ = closer.Close()
		log.SetOutput(os.Stdout)
		log.SetLevel(log.InfoLevel)
	})

	if log.GetLevel() != log.DebugLevel {
		t.Fatalf("expected debug level, got %s", log.GetLevel())
	}
	log.WithField("component", "test").Info("hello rotation")

	data, errRead := os.ReadFile(path)
	if errRead != nil {
		t.Fatalf("read log file: %v", errRead)
	}
	if !strings.Contains(string(data), `"msg":"hello rotation"`) {
		t.Fatalf("expected json entry in log file, got %q", string(data))
	}
}

func TestSetupInvalidLevelFallsBackToInfo(t *testing.T) {
	if _, errSetup := Setup(config.LogConfig{Level: "loud"}); errSetup != nil {
		t.Fatalf("setup: %v", errSetup)
	}
	if log.GetLevel() != log.InfoLevel {
		t.Fatalf("expected info level, got %s", log.GetLevel())
	}
}
