package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("IOTLINK_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_InvalidIdentity verifies run fails when the device section is
// incomplete.
func TestRun_InvalidIdentity(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `
device:
  unique_id: ""
  company_id: "CP1"
  environment: "poc"
  platform: "aws"

mqtt:
  qos: 1
  keep_alive: 30

logging:
  level: info
  format: text
  output: stdout
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	t.Setenv("IOTLINK_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with empty device unique_id")
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("IOTLINK_CONFIG", "")

	path := getConfigPath()
	if path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("IOTLINK_CONFIG", expected)

	path := getConfigPath()
	if path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

// TestSampleTelemetry verifies the simulated reading is well-formed and
// encodable.
func TestSampleTelemetry(t *testing.T) {
	msg := sampleTelemetry()

	if len(msg.Data) != 3 {
		t.Fatalf("sampleTelemetry() fields = %d, want 3", len(msg.Data))
	}

	keys := map[string]bool{}
	for _, f := range msg.Data {
		keys[f.Key] = true
	}
	for _, want := range []string{"temperature", "humidity", "online"} {
		if !keys[want] {
			t.Errorf("sampleTelemetry() missing field %q", want)
		}
	}

	temp, ok := msg.Data[0].Value.(float64)
	if !ok {
		t.Fatalf("temperature value type = %T, want float64", msg.Data[0].Value)
	}
	if temp < 18.0 || temp > 26.0 {
		t.Errorf("temperature = %v, want within [18, 26]", temp)
	}
}
