// Package config loads and validates the benchmark run configuration:
// metadata, map/text-generator expansion settings, the player roster,
// and the game roster.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the condensed configuration the scheduler expands into a
// trial list. Field layout mirrors signalnine-thunderdome's
// Orchestrators/Tasks split, generalized to Players/Games.
type Config struct {
	Metadata  Metadata  `yaml:"metadata"`
	Expansion Expansion `yaml:"expansion"`
	Players   []Player  `yaml:"players"`
	Games     []Game    `yaml:"games"`
	Judge     Judge     `yaml:"judge"`
	Secrets   Secrets   `yaml:"secrets"`
	Results   Results   `yaml:"results"`
}

// Metadata identifies the benchmark run and its judge model.
type Metadata struct {
	BenchmarkID         string `yaml:"benchmark_id"`
	JudgeModel          string `yaml:"judge_model"`
	RoundsPerGame       int    `yaml:"rounds_per_game"`
	MasterSeed          int64  `yaml:"master_seed"`
	TrialTimeoutSeconds int    `yaml:"trial_timeout_seconds"` // overall wall-clock cap per trial, across every round
}

// TextGeneratorKind selects how map opening text is produced.
type TextGeneratorKind string

const (
	TextGeneratorJudge            TextGeneratorKind = "JUDGE"
	TextGeneratorCommunityArchive TextGeneratorKind = "COMMUNITY_ARCHIVE"
)

// Expansion controls how many maps are drawn per game and how their
// opening text is generated.
type Expansion struct {
	NumMapsPerGame int               `yaml:"num_maps_per_game"`
	TextGenerator  TextGeneratorKind `yaml:"text_generator"`
	MaxStoryLength int               `yaml:"max_story_length"`
	ArchivePath    string            `yaml:"archive_path"` // used when TextGenerator == COMMUNITY_ARCHIVE
}

// PlayerKind selects which Player Adapter back-end drives a player.
type PlayerKind string

const (
	PlayerKindDefault PlayerKind = "default" // container-hosted agent, bridge protocol
	PlayerKindLLM     PlayerKind = "llm"     // direct chat-completion HTTP call
	PlayerKindHuman   PlayerKind = "human"   // live channel (stdin or socket)
)

// Player describes one player entry in the benchmark roster.
type Player struct {
	ID      string        `yaml:"id"`
	Type    PlayerKind    `yaml:"type"`
	Options PlayerOptions `yaml:"options"`
}

// PlayerOptions carries back-end-specific configuration. Not every field
// applies to every PlayerKind; irrelevant fields are simply unused.
type PlayerOptions struct {
	Model          string            `yaml:"model"`
	Provider       string            `yaml:"provider"`
	Image          string            `yaml:"image"` // docker image for PlayerKindDefault
	RequestParams  map[string]string `yaml:"request_params"`
	RateLimit      RateLimit         `yaml:"rate_limit"`
	MaxRetries     int               `yaml:"max_retries"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
}

// RateLimit configures the token bucket the Player Adapter pool uses to
// throttle calls to a given provider.
type RateLimit struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// Game describes one game entry: its XDL source and the presentation
// function that renders its event log into a chat prompt.
type Game struct {
	Name               string `yaml:"name"`
	Source             string `yaml:"source"`              // path to .xdl file
	PresentationSource string `yaml:"presentation_source"` // registered presentation function name
}

// Judge configures how the scheduler reaches the judge model process.
// If Addr is set, the gateway dials an already-running sidecar instead
// of spawning one — mirrors thunderdome's litellm subprocess vs.
// pre-existing gateway URL split.
type Judge struct {
	SidecarCommand string   `yaml:"sidecar_command"`
	SidecarArgs    []string `yaml:"sidecar_args"`
	Addr           string   `yaml:"addr"`
	LogDir         string   `yaml:"log_dir"`
	CacheSize      int      `yaml:"cache_size"`
}

// Secrets points at an env file the player back-ends read credentials
// from.
type Secrets struct {
	EnvFile string `yaml:"env_file"`
}

// Results configures where trial/benchmark result files are written.
type Results struct {
	Dir string `yaml:"dir"`
}

// Load reads and validates a condensed benchmark configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Metadata.BenchmarkID == "" {
		return fmt.Errorf("metadata.benchmark_id is required")
	}
	if cfg.Metadata.JudgeModel == "" {
		return fmt.Errorf("metadata.judge_model is required")
	}
	if cfg.Metadata.RoundsPerGame < 1 {
		cfg.Metadata.RoundsPerGame = 1
	}
	if cfg.Metadata.TrialTimeoutSeconds <= 0 {
		cfg.Metadata.TrialTimeoutSeconds = 1800
	}

	if len(cfg.Players) == 0 {
		return fmt.Errorf("no players defined")
	}
	seenPlayer := map[string]bool{}
	for i := range cfg.Players {
		p := &cfg.Players[i]
		if p.ID == "" {
			return fmt.Errorf("player %d: id is required", i)
		}
		if seenPlayer[p.ID] {
			return fmt.Errorf("player %d: duplicate id %q", i, p.ID)
		}
		seenPlayer[p.ID] = true
		switch p.Type {
		case PlayerKindDefault, PlayerKindLLM, PlayerKindHuman:
		case "":
			p.Type = PlayerKindDefault
		default:
			return fmt.Errorf("player %q: unknown type %q", p.ID, p.Type)
		}
		if p.Type == PlayerKindDefault && p.Options.Image == "" {
			return fmt.Errorf("player %q: options.image is required for default players", p.ID)
		}
		if p.Options.MaxRetries <= 0 {
			p.Options.MaxRetries = 3
		}
		if p.Options.TimeoutSeconds <= 0 {
			p.Options.TimeoutSeconds = 120
		}
	}

	if len(cfg.Games) == 0 {
		return fmt.Errorf("no games defined")
	}
	seenGame := map[string]bool{}
	for i := range cfg.Games {
		g := &cfg.Games[i]
		if g.Name == "" {
			return fmt.Errorf("game %d: name is required", i)
		}
		if seenGame[g.Name] {
			return fmt.Errorf("game %d: duplicate name %q", i, g.Name)
		}
		seenGame[g.Name] = true
		if g.Source == "" {
			return fmt.Errorf("game %q: source is required", g.Name)
		}
		if g.PresentationSource == "" {
			return fmt.Errorf("game %q: presentation_source is required", g.Name)
		}
	}

	if cfg.Expansion.NumMapsPerGame < 1 {
		cfg.Expansion.NumMapsPerGame = 1
	}
	switch cfg.Expansion.TextGenerator {
	case TextGeneratorJudge, TextGeneratorCommunityArchive:
	case "":
		cfg.Expansion.TextGenerator = TextGeneratorJudge
	default:
		return fmt.Errorf("expansion.text_generator: unknown kind %q", cfg.Expansion.TextGenerator)
	}
	if cfg.Expansion.TextGenerator == TextGeneratorCommunityArchive && cfg.Expansion.ArchivePath == "" {
		return fmt.Errorf("expansion.archive_path is required when text_generator is COMMUNITY_ARCHIVE")
	}
	if cfg.Expansion.MaxStoryLength <= 0 {
		cfg.Expansion.MaxStoryLength = 512
	}

	if cfg.Results.Dir == "" {
		cfg.Results.Dir = "results"
	}
	if cfg.Judge.CacheSize <= 0 {
		cfg.Judge.CacheSize = 4096
	}

	return nil
}
