package detection

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type fakeLoader struct {
	detectorErr  error
	extractorErr error
	loaded       []string
}

func (l *fakeLoader) LoadDetector(ctx context.Context, path string) (ObjectDetector, error) {
	if l.detectorErr != nil {
		return nil, l.detectorErr
	}
	l.loaded = append(l.loaded, filepath.Base(path))
	return &fakeDetector{}, nil
}

func (l *fakeLoader) LoadExtractor(ctx context.Context, langs string) (TextExtractor, error) {
	if l.extractorErr != nil {
		return nil, l.extractorErr
	}
	return &fakeExtractor{}, nil
}

func writeModelFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("weights"), 0644); err != nil {
		t.Fatalf("Failed to write model file: %v", err)
	}
	return path
}

func TestNewRegistry_AllSlots(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t)
	cfg.Models.Weapons = writeModelFile(t, dir, "weapons.pt")
	cfg.Models.Plate = writeModelFile(t, dir, "plate.pt")
	cfg.Models.Behaviour = writeModelFile(t, dir, "behaviour.pt")
	cfg.Models.OCR = true

	r := NewRegistry(context.Background(), cfg, &fakeLoader{})

	status := r.GetStatus()
	if !status.Weapons || !status.Plate || !status.Behaviour || !status.OCR {
		t.Errorf("Expected all capabilities enabled, got %+v", status)
	}
	if status.Device != "cpu" {
		t.Errorf("Device = %s, want cpu", status.Device)
	}
}

func TestNewRegistry_MissingFilesDisableSlots(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t)
	cfg.Models.Weapons = writeModelFile(t, dir, "weapons.pt")
	cfg.Models.Plate = filepath.Join(dir, "absent.pt")
	cfg.Models.Behaviour = filepath.Join(dir, "also-absent.pt")
	cfg.Models.OCR = true

	loader := &fakeLoader{}
	r := NewRegistry(context.Background(), cfg, loader)

	status := r.GetStatus()
	if !status.Weapons {
		t.Error("Weapons slot should be enabled")
	}
	if status.Plate || status.Behaviour {
		t.Errorf("Missing model files must disable their slots, got %+v", status)
	}
	if status.OCR {
		t.Error("Extraction must stay disabled without a plate detector")
	}
	if len(loader.loaded) != 1 || loader.loaded[0] != "weapons.pt" {
		t.Errorf("Loader should only see present files, got %v", loader.loaded)
	}
}

func TestNewRegistry_LoaderFailureDisablesSlot(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t)
	cfg.Models.Weapons = writeModelFile(t, dir, "weapons.pt")
	cfg.Models.Plate = writeModelFile(t, dir, "plate.pt")
	cfg.Models.Behaviour = writeModelFile(t, dir, "behaviour.pt")

	r := NewRegistry(context.Background(), cfg, &fakeLoader{detectorErr: errors.New("bad weights")})

	status := r.GetStatus()
	if status.Weapons || status.Plate || status.Behaviour {
		t.Errorf("Construction failures must disable slots, got %+v", status)
	}
}

func TestNewRegistry_ExtractorFailureKeepsPlate(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t)
	cfg.Models.Weapons = filepath.Join(dir, "absent.pt")
	cfg.Models.Plate = writeModelFile(t, dir, "plate.pt")
	cfg.Models.Behaviour = filepath.Join(dir, "absent2.pt")
	cfg.Models.OCR = true

	r := NewRegistry(context.Background(), cfg, &fakeLoader{extractorErr: errors.New("no engine")})

	status := r.GetStatus()
	if !status.Plate {
		t.Error("Plate slot should survive an extractor failure")
	}
	if status.OCR {
		t.Error("Extraction should be disabled after a load failure")
	}
}

func TestNewRegistry_OCRDisabledByConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t)
	cfg.Models.Weapons = filepath.Join(dir, "absent.pt")
	cfg.Models.Plate = writeModelFile(t, dir, "plate.pt")
	cfg.Models.Behaviour = filepath.Join(dir, "absent2.pt")
	cfg.Models.OCR = false

	r := NewRegistry(context.Background(), cfg, &fakeLoader{})

	if r.GetStatus().OCR {
		t.Error("Extraction must stay off when not configured")
	}
	if r.Extractor() != nil {
		t.Error("Extractor() should be nil when extraction is off")
	}
}
