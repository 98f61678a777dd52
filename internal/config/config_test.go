package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Errorf("Load() of a missing file = %+v, want Default()", cfg)
	}
}

func TestLoadOverridesDefaultsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	yaml := "product: ETH-USD\noutput: eth.csv\nema_interval_seconds: 10\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Product != "ETH-USD" {
		t.Errorf("Product = %q, want ETH-USD", cfg.Product)
	}
	if cfg.Output != "eth.csv" {
		t.Errorf("Output = %q, want eth.csv", cfg.Output)
	}
	if cfg.EMAIntervalSeconds != 10 {
		t.Errorf("EMAIntervalSeconds = %d, want 10", cfg.EMAIntervalSeconds)
	}
	// Fields the file did not mention keep their defaults.
	if cfg.RingACapacity != Default().RingACapacity {
		t.Errorf("RingACapacity = %d, want default %d", cfg.RingACapacity, Default().RingACapacity)
	}
}

func TestApplyFlagsOverridesOnlyNonEmpty(t *testing.T) {
	cfg := Default()
	got := ApplyFlags(cfg, "ETH-USD", "", "")
	if got.Product != "ETH-USD" {
		t.Errorf("Product = %q, want ETH-USD", got.Product)
	}
	if got.Output != cfg.Output {
		t.Errorf("Output = %q, want unchanged %q", got.Output, cfg.Output)
	}
}

func TestValidateRejectsNonPowerOfTwoCapacity(t *testing.T) {
	cfg := Default()
	cfg.RingACapacity = 100
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Validate to reject a non-power-of-two ring capacity")
	}
}

func TestValidateRejectsEmptyProduct(t *testing.T) {
	cfg := Default()
	cfg.Product = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Validate to reject an empty product")
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default() should validate cleanly, got %v", err)
	}
}
