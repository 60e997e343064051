package artifact

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// ErrNotFound is returned when no layout convention yields a firmware
// binary for the device stem.
var ErrNotFound = errors.New("firmware binary not found")

// Artifact is a located firmware binary. BuildName is the identifier the
// build tool embedded in its output directory, which may differ from the
// device's configured name and is a better OTA hostname candidate.
type Artifact struct {
	Path      string
	BuildName string
}

// Lister enumerates paths matching a shell-style glob inside the build
// environment. The production implementation runs inside the build
// container; tests substitute an in-memory one.
type Lister interface {
	Glob(ctx context.Context, pattern string) ([]string, error)
}

// Resolver searches the known build output layouts for a device's
// firmware binary.
type Resolver struct {
	lister     Lister
	buildRoot  string
	configRoot string
	logger     zerolog.Logger
}

// NewResolver creates a resolver. buildRoot is the modern PlatformIO
// build directory (/data/build in the stock container); configRoot is
// the ESPHome config directory holding the legacy .esphome tree.
func NewResolver(lister Lister, buildRoot, configRoot string, logger zerolog.Logger) *Resolver {
	return &Resolver{
		lister:     lister,
		buildRoot:  buildRoot,
		configRoot: configRoot,
		logger:     logger.With().Str("component", "artifact").Logger(),
	}
}

// layout is one known build-output convention. scored layouts can match
// several build directories and go through Score; unscored layouts are
// exact single-path probes.
type layout struct {
	name    string
	pattern string
	scored  bool
}

func (r *Resolver) layouts(stem string) []layout {
	esphomeBuild := r.configRoot + "/.esphome/build"
	return []layout{
		{
			name:    "platformio",
			pattern: fmt.Sprintf("%s/%s*/.pioenvs/%s*/firmware.bin", r.buildRoot, stem, stem),
			scored:  true,
		},
		{
			name:    "esphome-pioenvs",
			pattern: fmt.Sprintf("%s/%s/.pioenvs/%s/firmware.bin", esphomeBuild, stem, stem),
		},
		{
			name:    "esphome-legacy",
			pattern: fmt.Sprintf("%s/%s/%s.bin", esphomeBuild, stem, stem),
		},
		{
			name:    "wildcard-sweep",
			pattern: fmt.Sprintf("%s/*/.pioenvs/*/firmware.bin", r.buildRoot),
			scored:  true,
		},
	}
}

// Locate searches the conventions in priority order and returns the best
// candidate for the device stem, or ErrNotFound after exhausting the
// final wildcard sweep.
func (r *Resolver) Locate(ctx context.Context, stem string) (Artifact, error) {
	for _, l := range r.layouts(stem) {
		paths, err := r.lister.Glob(ctx, l.pattern)
		if err != nil {
			return Artifact{}, fmt.Errorf("listing %s layout: %w", l.name, err)
		}
		if len(paths) == 0 {
			continue
		}

		var art Artifact
		var ok bool
		if l.scored {
			art, ok = pickScored(stem, r.buildDirName, paths)
		} else {
			art, ok = Artifact{Path: paths[0], BuildName: stem}, true
		}
		if !ok {
			continue
		}

		r.logger.Debug().
			Str("layout", l.name).
			Str("path", art.Path).
			Str("build_name", art.BuildName).
			Msg("firmware binary located")
		return art, nil
	}

	return Artifact{}, fmt.Errorf("%w for %s", ErrNotFound, stem)
}

// buildDirName extracts the build-derived name from a matched path: the
// path component directly under the build root.
func (r *Resolver) buildDirName(path string) string {
	rel := strings.TrimPrefix(path, r.buildRoot+"/")
	if rel == path {
		return ""
	}
	if i := strings.IndexByte(rel, '/'); i > 0 {
		return rel[:i]
	}
	return rel
}

// pickScored ranks the candidate paths by Score of their build-derived
// name and returns the best non-zero candidate. The sort is stable, so
// ties keep the lister's order and the first candidate wins.
func pickScored(stem string, buildName func(string) string, paths []string) (Artifact, bool) {
	type candidate struct {
		art   Artifact
		score int
	}
	candidates := make([]candidate, 0, len(paths))
	for _, p := range paths {
		name := buildName(p)
		if s := Score(stem, name); s > 0 {
			candidates = append(candidates, candidate{
				art:   Artifact{Path: p, BuildName: name},
				score: s,
			})
		}
	}
	if len(candidates) == 0 {
		return Artifact{}, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	return candidates[0].art, true
}

// Score ranks a candidate build directory name against the device stem:
//
//	3  stem is a proper prefix of the name ("ai001-lounge-abc" for "ai001")
//	2  exact match ("ai001")
//	1  stem occurs elsewhere in the name
//	0  no match, candidate excluded
//
// A proper prefix outranks an exact match because the build tool appends
// chip-variant suffixes to the stem: when a suffixed directory exists it
// is the current build and any bare-stem directory is stale.
func Score(stem, name string) int {
	switch {
	case name == "" || stem == "":
		return 0
	case name == stem:
		return 2
	case strings.HasPrefix(name, stem):
		return 3
	case strings.Contains(name, stem):
		return 1
	}
	return 0
}
