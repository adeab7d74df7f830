package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleConfig = `
# Printer configuration
[printer]
name: test-printer

[ino_heater extruder]
serial: /dev/ttyACM0
control: pid
pid_kp: 13.41
pid_ki: 30.91
pid_kd: 1.46
min_temp: 0
max_temp: 450
smooth_time: 1.0

[ino_heater extruder1]
serial: /dev/ttyACM1
control: watermark
max_delta: 2.5
min_temp: 0
max_temp: 450
`

func TestLoadString(t *testing.T) {
	c, err := LoadString(sampleConfig)
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}

	if !c.HasSection("printer") {
		t.Error("missing [printer] section")
	}

	s, err := c.GetSection("ino_heater extruder")
	if err != nil {
		t.Fatalf("GetSection failed: %v", err)
	}
	if got := s.GetName(); got != "ino_heater extruder" {
		t.Errorf("GetName() = %q", got)
	}

	serial, err := s.Get("serial")
	if err != nil || serial != "/dev/ttyACM0" {
		t.Errorf("Get(serial) = %q, %v", serial, err)
	}

	kp, err := s.GetFloat("pid_kp")
	if err != nil || kp != 13.41 {
		t.Errorf("GetFloat(pid_kp) = %v, %v", kp, err)
	}
}

func TestGetPrefixSections(t *testing.T) {
	c, err := LoadString(sampleConfig)
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}

	sections := c.GetPrefixSections("ino_heater")
	if len(sections) != 2 {
		t.Fatalf("expected 2 ino_heater sections, got %d", len(sections))
	}
	if sections[0].GetName() != "ino_heater extruder" {
		t.Errorf("sections out of file order: %q first", sections[0].GetName())
	}
}

func TestGetFloatWithBounds(t *testing.T) {
	c, err := LoadString("[s]\na: 5.0\nb: -1.0\n")
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}
	s, _ := c.GetSection("s")

	if _, err := s.GetFloatWithBounds("a", Range(0, 10)); err != nil {
		t.Errorf("in-range value rejected: %v", err)
	}
	if _, err := s.GetFloatWithBounds("b", Min(0)); err == nil {
		t.Error("below-minimum value accepted")
	}
	if _, err := s.GetFloatWithBounds("a", Above(5.0)); err == nil {
		t.Error("boundary value accepted for strict Above")
	}
}

func TestFallbacks(t *testing.T) {
	c, err := LoadString("[s]\npresent: 7\n")
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}
	s, _ := c.GetSection("s")

	if v, err := s.GetInt("present", 3); err != nil || v != 7 {
		t.Errorf("GetInt(present) = %v, %v", v, err)
	}
	if v, err := s.GetInt("absent", 3); err != nil || v != 3 {
		t.Errorf("GetInt(absent) fallback = %v, %v", v, err)
	}
	if _, err := s.GetFloat("absent"); err == nil {
		t.Error("mandatory absent option accepted")
	}
}

func TestGetBool(t *testing.T) {
	c, err := LoadString("[s]\nyes1: on\nno1: 0\nbad: maybe\n")
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}
	s, _ := c.GetSection("s")

	if v, err := s.GetBool("yes1"); err != nil || !v {
		t.Errorf("GetBool(on) = %v, %v", v, err)
	}
	if v, err := s.GetBool("no1"); err != nil || v {
		t.Errorf("GetBool(0) = %v, %v", v, err)
	}
	if _, err := s.GetBool("bad"); err == nil {
		t.Error("invalid boolean accepted")
	}
}

func TestGetChoice(t *testing.T) {
	c, err := LoadString("[s]\ncontrol: pid\n")
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}
	s, _ := c.GetSection("s")

	if v, err := s.GetChoice("control", []string{"pid", "watermark"}); err != nil || v != "pid" {
		t.Errorf("GetChoice = %v, %v", v, err)
	}
	if _, err := s.GetChoice("control", []string{"watermark"}); err == nil {
		t.Error("out-of-set choice accepted")
	}
}

func TestUnusedTracking(t *testing.T) {
	c, err := LoadString("[used]\na: 1\nb: 2\n[unused]\nc: 3\n")
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}
	s, _ := c.GetSection("used")
	if _, err := s.GetInt("a"); err != nil {
		t.Fatal(err)
	}

	unused := c.GetUnusedSections()
	if len(unused) != 1 || unused[0] != "unused" {
		t.Errorf("GetUnusedSections() = %v", unused)
	}
	if opts := s.GetUnusedOptions(); len(opts) != 1 || opts[0] != "b" {
		t.Errorf("GetUnusedOptions() = %v", opts)
	}
}

func TestInclude(t *testing.T) {
	dir := t.TempDir()
	inc := filepath.Join(dir, "heater.cfg")
	if err := os.WriteFile(inc, []byte("[ino_heater extruder]\nserial: /dev/ttyACM0\nmin_temp: 0\nmax_temp: 450\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	main := filepath.Join(dir, "printer.cfg")
	if err := os.WriteFile(main, []byte("[printer]\nname: inc-test\n[include heater.cfg]\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(main)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !c.HasSection("ino_heater extruder") {
		t.Error("included section missing")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"option outside section", "a: 1\n"},
		{"empty header", "[]\n"},
		{"malformed line", "[s]\nnot an option\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadString(tt.data); err == nil {
				t.Errorf("expected parse error for %q", tt.data)
			}
		})
	}
}
