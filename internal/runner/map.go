package runner

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/xentbench/xent-runtime/internal/judge"
	"github.com/xentbench/xent-runtime/internal/xdl"
)

// StoryGenerator produces the opening story text a map's assign(...story())
// bindings draw from. JudgeStoryGenerator and ArchiveStoryGenerator are the
// two configured implementations; either can also serve as an
// interp.TextGenerator once bound to one map's seed.
type StoryGenerator interface {
	Generate(ctx context.Context, seed int64, maxLength int) (string, error)
}

// narrativeSeeds primes the judge model's sampling with a genre so its
// completions read as story openings rather than arbitrary continuations.
var narrativeSeeds = []string{
	"The decay of the house was not a thing of mere wood and stone, but a rot of the spirit.",
	"ACTION ITEM: Q3 Synergy Mandate. All departmental units are required to interface with the new middleware.",
	"Detective Harding stared at the chalk outline. Everything seemed normal, except for a single playing card.",
	"The ship's AI spoke with an unnerving calm. 'I'm afraid the cryogenic pods have been misplaced.'",
	"In a forest where the rivers flowed with honey, there lived a badger who had forgotten how to laugh.",
	"Day 27. The hunger is a dull ache now. Ate the last of the lichen yesterday. The wind never stops.",
	"Once upon a time, in a kingdom made entirely of clockwork, there lived a princess who spoke only in equations.",
	"The excavation team found it buried beneath the ice: a door that opened inward from both sides.",
}

// JudgeStoryGenerator samples an opening from the judge model, primed with
// a randomly chosen narrative seed and this map's own RNG stream so the
// same map seed always produces the same priming choice.
type JudgeStoryGenerator struct {
	Judge *judge.Gateway
}

func (g *JudgeStoryGenerator) Generate(ctx context.Context, seed int64, maxLength int) (string, error) {
	rng := rand.New(rand.NewSource(seed))
	prime := narrativeSeeds[rng.Intn(len(narrativeSeeds))]
	return g.Judge.Sample(ctx, prime, maxLength, seed)
}

// ArchiveStoryGenerator draws deterministically from a fixed on-disk
// archive of community text, one JSON array of strings.
type ArchiveStoryGenerator struct {
	entries []string
}

// NewArchiveStoryGenerator loads the archive once; callers share the
// returned generator across every map draw in a benchmark run.
func NewArchiveStoryGenerator(path string) (*ArchiveStoryGenerator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading community archive %s: %w", path, err)
	}
	var entries []string
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing community archive %s: %w", path, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("community archive %s is empty", path)
	}
	return &ArchiveStoryGenerator{entries: entries}, nil
}

func (g *ArchiveStoryGenerator) Generate(_ context.Context, seed int64, maxLength int) (string, error) {
	rng := rand.New(rand.NewSource(seed))
	text := g.entries[rng.Intn(len(g.entries))]
	if maxLength > 0 && len(text) > maxLength {
		text = text[:maxLength]
	}
	return text, nil
}

// seededTextGenerator binds a StoryGenerator to one map's seed, satisfying
// interp.TextGenerator for exactly one map-generation pass.
type seededTextGenerator struct {
	gen       StoryGenerator
	seed      int64
	maxLength int
}

func (s *seededTextGenerator) Story(ctx context.Context) (string, error) {
	return s.gen.Generate(ctx, s.seed, s.maxLength)
}

// MapSeed derives the i-th deterministic map seed for a game from the
// benchmark's master seed, so the same configuration always expands to the
// same set of maps.
func MapSeed(masterSeed int64, gameName string, i int) string {
	h := sha256.New()
	binary.Write(h, binary.BigEndian, masterSeed)
	h.Write([]byte(gameName))
	binary.Write(h, binary.BigEndian, int64(i))
	sum := h.Sum(nil)
	return fmt.Sprintf("%x", sum[:8])
}

// seedInt64 turns a map seed string into an int64 RNG seed, deterministic
// regardless of how the string itself was derived.
func seedInt64(mapSeed string) int64 {
	h := sha256.Sum256([]byte(mapSeed))
	return int64(binary.BigEndian.Uint64(h[:8]))
}

// MapPath returns the on-disk location a generated map is memoised at.
func MapPath(resultsDir, benchmarkID, gameName, mapSeed string) string {
	return filepath.Join(resultsDir, benchmarkID, "maps", fmt.Sprintf("%s_%s.json", gameName, mapSeed))
}

type mapFile struct {
	Bindings map[string]string `json:"bindings"`
}

// GenerateMap produces (or loads, if already memoised on disk) the
// prefix bindings for one (game, map seed) pair by running only the
// program's assign(...) prefix that doesn't depend on elicit() output.
// Map results are shared across every player that plays this map.
func GenerateMap(ctx context.Context, path string, prog *xdl.Program, gen StoryGenerator, mapSeed string, maxStoryLength int) (map[string]string, error) {
	if data, err := os.ReadFile(path); err == nil {
		var mf mapFile
		if err := json.Unmarshal(data, &mf); err == nil {
			return mf.Bindings, nil
		}
	}

	textGen := &seededTextGenerator{gen: gen, seed: seedInt64(mapSeed), maxLength: maxStoryLength}
	bindings, err := runAssignPrefix(ctx, prog, textGen)
	if err != nil {
		return nil, fmt.Errorf("generating map %s: %w", mapSeed, err)
	}

	if err := writeMapFile(path, bindings); err != nil {
		return nil, err
	}
	return bindings, nil
}

// runAssignPrefix evaluates the program's leading assign(...) operations
// — the ones a map needs before any player ever touches the register file
// — stopping at the first op that isn't an assign. Only story() calls,
// string literals, identifiers, and '+' concatenation are valid in this
// prefix; anything else (xent scoring, elicit-derived values) belongs to
// round execution, not map generation.
func runAssignPrefix(ctx context.Context, prog *xdl.Program, textGen *seededTextGenerator) (map[string]string, error) {
	bindings := map[string]string{}
	for _, op := range prog.Ops {
		if op.Kind != xdl.OpAssign {
			break
		}
		v, err := evalMapExpr(ctx, op.AssignExpr, bindings, textGen)
		if err != nil {
			return nil, fmt.Errorf("assign at line %d: %w", op.Line, err)
		}
		bindings[op.AssignName] = v
	}
	return bindings, nil
}

func evalMapExpr(ctx context.Context, expr xdl.Expr, bindings map[string]string, textGen *seededTextGenerator) (string, error) {
	switch e := expr.(type) {
	case xdl.StringLit:
		return e.Value, nil
	case xdl.Ident:
		return bindings[e.Name], nil
	case xdl.Concat:
		left, err := evalMapExpr(ctx, e.Left, bindings, textGen)
		if err != nil {
			return "", err
		}
		right, err := evalMapExpr(ctx, e.Right, bindings, textGen)
		if err != nil {
			return "", err
		}
		return left + right, nil
	case xdl.Call:
		if e.Name != "story" {
			return "", fmt.Errorf("%s() is not valid in a map's prefix", e.Name)
		}
		return textGen.Story(ctx)
	default:
		return "", fmt.Errorf("unsupported expression in map prefix: %T", expr)
	}
}

func writeMapFile(path string, bindings map[string]string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating map dir %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(mapFile{Bindings: bindings}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling map %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp map file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp map file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp map file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp map file into %s: %w", path, err)
	}
	return nil
}
