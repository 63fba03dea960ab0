package config_test

import (
	"testing"

	"github.com/xentbench/xent-runtime/internal/config"
)

func TestLoadMinimal(t *testing.T) {
	cfg, err := config.Load("../../testdata/minimal.yaml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.Players) != 1 {
		t.Errorf("expected 1 player, got %d", len(cfg.Players))
	}
	if cfg.Players[0].Type != config.PlayerKindHuman {
		t.Errorf("expected human player, got %q", cfg.Players[0].Type)
	}
	if len(cfg.Games) != 1 {
		t.Errorf("expected 1 game, got %d", len(cfg.Games))
	}
	if cfg.Metadata.RoundsPerGame != 1 {
		t.Errorf("expected 1 round, got %d", cfg.Metadata.RoundsPerGame)
	}
	if cfg.Expansion.TextGenerator != config.TextGeneratorJudge {
		t.Errorf("expected default text generator JUDGE, got %q", cfg.Expansion.TextGenerator)
	}
	if cfg.Metadata.TrialTimeoutSeconds != 1800 {
		t.Errorf("expected default trial timeout of 1800s, got %d", cfg.Metadata.TrialTimeoutSeconds)
	}
}

func TestLoadFull(t *testing.T) {
	cfg, err := config.Load("../../testdata/full.yaml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.Players) < 2 {
		t.Errorf("expected at least 2 players, got %d", len(cfg.Players))
	}
	if cfg.Secrets.EnvFile == "" {
		t.Error("expected secrets env_file to be set")
	}
	for _, p := range cfg.Players {
		if p.ID == "claude-default" && p.Options.Image == "" {
			t.Error("expected image on claude-default player")
		}
	}
	if cfg.Expansion.TextGenerator != config.TextGeneratorCommunityArchive {
		t.Errorf("expected COMMUNITY_ARCHIVE, got %q", cfg.Expansion.TextGenerator)
	}
	if cfg.Metadata.TrialTimeoutSeconds != 900 {
		t.Errorf("expected trial timeout 900s from config, got %d", cfg.Metadata.TrialTimeoutSeconds)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := config.Load("nonexistent.yaml")
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadInvalid(t *testing.T) {
	_, err := config.Load("../../testdata/invalid.yaml")
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestDefaultPlayerRequiresImage(t *testing.T) {
	_, err := config.Load("../../testdata/missing_image.yaml")
	if err == nil {
		t.Error("expected error for default player missing options.image")
	}
}
