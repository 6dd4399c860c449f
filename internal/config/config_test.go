package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if len(cfg.Events.Definitions) == 0 || len(cfg.Universe.Systems) == 0 {
		t.Fatalf("default catalogs missing")
	}
	if cfg.Danger.MaxDanger != 0.5 || cfg.Missions.Rewards.Min != 100 {
		t.Fatalf("unexpected tuning %+v %+v", cfg.Danger, cfg.Missions.Rewards)
	}
	if _, ok := cfg.Good("reactor_cores"); !ok {
		t.Fatalf("expected reactor_cores in catalog")
	}
	sol := cfg.Universe.Systems[0]
	if gov, ok := cfg.GovernmentFor(sol); !ok || gov.ID != "federation" {
		t.Fatalf("expected sol under federation, got %+v", gov)
	}
}

func TestFromYAMLKeepsTuningDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault()))
	if err != nil {
		t.Fatalf("from yaml: %v", err)
	}
	if cfg.Fleet.ModuleSlots != 3 || cfg.Missions.Quantity.Max != 50 {
		t.Fatalf("sections absent from yaml should keep defaults: %+v", cfg.Fleet)
	}
	if len(cfg.Missions.EventGoods["plague"]) != 3 {
		t.Fatalf("event goods not decoded: %+v", cfg.Missions.EventGoods)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name string
		old  string
		new  string
		want string
	}{
		{"inverted duration", "duration: {min: 3, max: 6}", "duration: {min: 6, max: 3}", "phases[0].duration"},
		{"spawnable without weight", "weight: 4", "weight: 0", "spawnable definitions need weight"},
		{"unknown spread type", "event_type: unrest", "event_type: riots", "unknown event type riots"},
		{"unknown good in shock", "{good_id: fuel, parameter: supply, value: -25}", "{good_id: plasma, parameter: supply, value: -25}", "unknown good plasma"},
		{"bad loss range", "min_loss_fraction: 0.2\n", "min_loss_fraction: 0.6\n", "danger loss fractions"},
		{"unknown region", "region: fringe, economy: outlaw", "region: void, economy: outlaw", "unknown region void"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := strings.Replace(GenerateDefault(), tc.old, tc.new, 1)
			if raw == GenerateDefault() {
				t.Fatalf("fixture %q not found in template", tc.old)
			}
			_, err := FromYAML([]byte(raw))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadFromWorkspace(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(dir); err == nil {
		t.Fatalf("expected missing config error")
	}
	cfg, err := LoadOptional(dir)
	if err != nil || cfg.World.ID != "main" {
		t.Fatalf("optional load: %v %+v", err, cfg)
	}
	raw := strings.Replace(GenerateDefault(), "seed: 1337", "seed: 42", 1)
	if err := os.WriteFile(filepath.Join(dir, "stardock.yml"), []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.World.Seed != 42 {
		t.Fatalf("seed = %d", cfg.World.Seed)
	}
}
