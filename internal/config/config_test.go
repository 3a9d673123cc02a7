package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load of missing file should fall back to defaults, got %v", err)
	}

	if cfg.Server.Port != 3005 {
		t.Errorf("Expected default port 3005, got %d", cfg.Server.Port)
	}
	if cfg.Detection.WeaponThreshold != 0.90 {
		t.Errorf("Expected weapon threshold 0.90, got %f", cfg.Detection.WeaponThreshold)
	}
	if cfg.Detection.PlateThreshold != 0.70 {
		t.Errorf("Expected plate threshold 0.70, got %f", cfg.Detection.PlateThreshold)
	}
	if cfg.Detection.BehaviourThreshold != 0.80 {
		t.Errorf("Expected behaviour threshold 0.80, got %f", cfg.Detection.BehaviourThreshold)
	}
	if cfg.Runtime.Device != "cpu" {
		t.Errorf("Expected default device cpu, got %s", cfg.Runtime.Device)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  port: 8080
runtime:
  device: cuda
models:
  weapons: /opt/models/w.pt
  ocr: true
detection:
  weapon_threshold: 0.85
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Runtime.Device != "cuda" {
		t.Errorf("Expected device cuda, got %s", cfg.Runtime.Device)
	}
	if cfg.Models.Weapons != "/opt/models/w.pt" {
		t.Errorf("Expected weapons model override, got %s", cfg.Models.Weapons)
	}
	if !cfg.Models.OCR {
		t.Error("Expected OCR enabled")
	}
	if cfg.Detection.WeaponThreshold != 0.85 {
		t.Errorf("Expected weapon threshold 0.85, got %f", cfg.Detection.WeaponThreshold)
	}
	// Unset fields still get defaults
	if cfg.Detection.PlateThreshold != 0.70 {
		t.Errorf("Expected default plate threshold, got %f", cfg.Detection.PlateThreshold)
	}
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not: a: map"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Expected error for invalid YAML")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("AEGIS_PORT", "9100")
	t.Setenv("AEGIS_DEVICE", "mps")
	t.Setenv("AEGIS_WEAPON_THRESHOLD", "0.95")
	t.Setenv("AEGIS_OCR", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("Expected port 9100 from env, got %d", cfg.Server.Port)
	}
	if cfg.Runtime.Device != "mps" {
		t.Errorf("Expected device mps from env, got %s", cfg.Runtime.Device)
	}
	if cfg.Detection.WeaponThreshold != 0.95 {
		t.Errorf("Expected weapon threshold 0.95 from env, got %f", cfg.Detection.WeaponThreshold)
	}
	if !cfg.Models.OCR {
		t.Error("Expected OCR enabled from env")
	}
}

func TestThresholds(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	w, p, b := cfg.Thresholds()
	if w != 0.90 || p != 0.70 || b != 0.80 {
		t.Errorf("Thresholds() = %f, %f, %f, want defaults", w, p, b)
	}
}
