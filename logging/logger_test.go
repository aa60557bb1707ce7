package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"broker-rpc/config"

	"go.uber.org/zap/zapcore"
)

func TestSetupFileOutput(t *testing.T) {
	dir := t.TempDir()
	for _, rotate := range []bool{false, true} {
		path := filepath.Join(dir, "logs", "rotate-"+map[bool]string{false: "off", true: "on"}[rotate]+".log")
		c := config.LogConfig{
			Level:   "warn",
			Format:  "json",
			Outputs: []string{path},
			Rotation: config.RotationConfig{
				Enable:    rotate,
				MaxSizeMB: 1,
			},
		}

		logger, err := Setup(c)
		if err != nil {
			t.Fatal(err)
		}
		logger.Info("hidden")
		logger.Warn("dropping undecodable request")
		logger.Sync()

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		out := string(data)
		if strings.Contains(out, "hidden") {
			t.Fatalf("expect info filtered at warn level, got %s", out)
		}
		if !strings.Contains(out, `"msg":"dropping undecodable request"`) {
			t.Fatalf("expect json warn entry, got %s", out)
		}
	}
}

func TestSetupUnknownLevelFallsBack(t *testing.T) {
	logger, err := Setup(config.LogConfig{Level: "nope", Outputs: []string{"stderr"}})
	if err != nil {
		t.Fatal(err)
	}
	if !logger.Core().Enabled(zapcore.InfoLevel) {
		t.Fatal("expect info level enabled")
	}
}
