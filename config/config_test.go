package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Engine.Deadline != 10*time.Second {
		t.Errorf("Engine.Deadline = %v, want 10s", cfg.Engine.Deadline)
	}
	if cfg.Redis.Address != "localhost:6379" || cfg.Redis.PoolSize != 10 {
		t.Errorf("redis defaults not applied: %+v", cfg.Redis)
	}
	if cfg.Market.Provider != "binance" || cfg.Market.MaxRetries != 3 {
		t.Errorf("market defaults not applied: %+v", cfg.Market)
	}
	if !cfg.Metrics.Enabled {
		t.Error("metrics should be enabled by default")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.MinAgents != 3 {
		t.Errorf("MinAgents = %d, want 3", cfg.Engine.MinAgents)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
engine:
  min_confidence: 75
  deadline: 5s
weights:
  store: memory
market:
  provider: file
  data_file: bars.json
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.MinConfidence != 75 {
		t.Errorf("MinConfidence = %v, want 75", cfg.Engine.MinConfidence)
	}
	if cfg.Engine.Deadline != 5*time.Second {
		t.Errorf("Deadline = %v, want 5s", cfg.Engine.Deadline)
	}
	if cfg.Engine.MinAgents != 3 {
		t.Errorf("unset fields should keep defaults, MinAgents = %d", cfg.Engine.MinAgents)
	}
	if cfg.Weights.Store != "memory" || cfg.Market.DataFile != "bars.json" {
		t.Errorf("unexpected sections: weights %+v market %+v", cfg.Weights, cfg.Market)
	}
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"server":{"port":9000},"risk":{"min_rr":2}}`), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9000 || cfg.Risk.MinRR != 2 {
		t.Errorf("port %d min_rr %v", cfg.Server.Port, cfg.Risk.MinRR)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"min agents above five", `{"engine":{"min_agents":6}}`},
		{"unknown store", `{"weights":{"store":"s3"}}`},
		{"file provider without file", `{"market":{"provider":"file"}}`},
		{"ladder mismatch", `{"risk":{"r_multiples":[1.5,3],"allocations":[1]}}`},
		{"malformed json", `{"engine":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			if err := os.WriteFile(path, []byte(tt.data), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WEB_PORT", "9100")
	t.Setenv("ENGINE_DEADLINE", "3s")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("WEIGHTS_STORE", "postgres")
	t.Setenv("ENGINE_MIN_AGENTS", "not-a-number")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.Engine.Deadline != 3*time.Second {
		t.Errorf("Deadline = %v, want 3s", cfg.Engine.Deadline)
	}
	if !cfg.Redis.Enabled || cfg.Weights.Store != "postgres" {
		t.Errorf("redis %v store %s", cfg.Redis.Enabled, cfg.Weights.Store)
	}
	if cfg.Engine.MinAgents != 3 {
		t.Errorf("an unparsable override should be ignored, MinAgents = %d", cfg.Engine.MinAgents)
	}
}

func TestGenerateSampleConfigRoundTrip(t *testing.T) {
	for _, name := range []string{"sample.json", "sample.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			if err := GenerateSampleConfig(path); err != nil {
				t.Fatalf("GenerateSampleConfig: %v", err)
			}
			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("Load sample: %v", err)
			}
			if cfg.Database.Password != "change-me" {
				t.Errorf("sample not loaded, password = %q", cfg.Database.Password)
			}
			if len(cfg.Risk.Classes) != 5 {
				t.Errorf("asset classes = %d, want 5", len(cfg.Risk.Classes))
			}
		})
	}
}
