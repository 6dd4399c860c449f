package main

import (
	"os"
	"path/filepath"
	"testing"

	"stardock/internal/domain"
)

func TestSetEnvValueReplacesAndAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("STARDOCK_PLAYER=old\nOTHER=1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := setEnvValue(path, "STARDOCK_PLAYER", "ada"); err != nil {
		t.Fatal(err)
	}
	if err := setEnvValue(path, "STARDOCK_JWT_SECRET", "s"); err != nil {
		t.Fatal(err)
	}
	got, _ := os.ReadFile(path)
	want := "STARDOCK_PLAYER=ada\nOTHER=1\nSTARDOCK_JWT_SECRET=s\n"
	if string(got) != want {
		t.Fatalf("got %q", got)
	}
}

func TestMissionTarget(t *testing.T) {
	trade := domain.Mission{Kind: domain.MissionTrade, GoodID: "water", Quantity: 5, DestinationID: "vega"}
	if got := missionTarget(trade); got != "5 water -> vega" {
		t.Fatalf("trade target %q", got)
	}
	bounty := domain.Mission{Kind: domain.MissionOperational, EnemyTier: "elite", StatRequirements: map[string]int{"hull": 50, "firepower": 15}}
	if got := missionTarget(bounty); got != "elite firepower>=15 hull>=50" {
		t.Fatalf("bounty target %q", got)
	}
}
