// Package layout resolves a recording layout — a JSON description of audio
// participants and video regions expressed as path globs against a source
// tree — into a domain.Layout: a concrete set of aggregated sources, a
// z-ordered list of regions with fully assigned grids, a canvas resolution
// and a trim-span schedule (§4.4).
package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shiguredo/hisui-sub000/internal/domain"
)

// resolveSourcePaths expands every glob in sources against basePath,
// de-duplicates, drops entries matched by excluded, and rejects any path
// that would resolve outside basePath. Every returned path is canonical
// (symlinks resolved) and already confirmed to exist.
func resolveSourcePaths(basePath string, sources, excluded []string) ([]string, error) {
	var paths []string
	seen := make(map[string]struct{})

	for _, pattern := range sources {
		expanded, err := globSourcePattern(basePath, pattern)
		if err != nil {
			return nil, err
		}
		for _, p := range expanded {
			real, err := filepath.EvalSymlinks(p)
			if err != nil {
				return nil, domain.WrapConfiguration(fmt.Errorf("canonicalize source path %q: %w", p, err))
			}
			rel, err := filepath.Rel(basePath, real)
			if err != nil || strings.HasPrefix(rel, "..") || rel == ".." {
				return nil, domain.WrapConfiguration(fmt.Errorf("source path %q is outside the base dir %q", real, basePath))
			}
			if _, ok := seen[real]; ok {
				continue
			}
			seen[real] = struct{}{}
			paths = append(paths, real)
		}
	}

	excludedAbs := make([]string, 0, len(excluded))
	for _, e := range excluded {
		excludedAbs = append(excludedAbs, filepath.Join(basePath, e))
	}

	filtered := paths[:0]
	for _, p := range paths {
		excludedMatch := false
		for _, e := range excludedAbs {
			if filepath.Dir(p) != filepath.Dir(e) {
				continue
			}
			if isWildcardNameMatched(filepath.Base(e), filepath.Base(p)) {
				excludedMatch = true
				break
			}
		}
		if !excludedMatch {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

// globSourcePattern expands a single source pattern. Patterns without '*'
// in their final path element are treated as literal paths and must exist
// (with a matching media file); patterns with a wildcard in the final
// element are expanded against the parent directory's entries, sorted for
// determinism, keeping only entries that also have a corresponding media
// file on disk.
func globSourcePattern(basePath, pattern string) ([]string, error) {
	full := filepath.Join(basePath, pattern)
	name := filepath.Base(full)

	if !strings.Contains(name, "*") {
		if _, err := os.Stat(full); err != nil {
			return nil, domain.WrapConfiguration(fmt.Errorf("no such source file: %s", full))
		}
		if !mediaFileExists(full) {
			return nil, domain.WrapConfiguration(fmt.Errorf("no media file for the source: %s", full))
		}
		return []string{full}, nil
	}

	parent := filepath.Dir(full)
	entries, err := os.ReadDir(parent)
	if err != nil {
		return nil, domain.WrapConfiguration(fmt.Errorf("no such source file directory: %s", parent))
	}

	var matched []string
	for _, entry := range entries {
		if !isWildcardNameMatched(name, entry.Name()) {
			continue
		}
		candidate := filepath.Join(parent, entry.Name())
		if !mediaFileExists(candidate) {
			continue
		}
		matched = append(matched, candidate)
	}
	sort.Strings(matched)
	return matched, nil
}

// SourceProbe extracts a source's metadata (container format, audio/video
// presence, wall-clock start/stop timestamps) from the resolved media file
// path, without fully decoding it. The concrete implementation lives in
// internal/reader, which sniffs the container's magic bytes and reads its
// header; layout only depends on this narrow function shape so it stays
// testable without a real container file.
type SourceProbe func(mediaPath string) (domain.SourceInfo, error)

// ResolveSourceAndMediaPathPairs expands sources/excluded glob patterns
// against basePath, then probes each resolved path for its SourceInfo.
func ResolveSourceAndMediaPathPairs(basePath string, sources, excluded []string, probe SourceProbe) ([]domain.SourceInfo, []string, error) {
	paths, err := resolveSourcePaths(basePath, sources, excluded)
	if err != nil {
		return nil, nil, err
	}

	infos := make([]domain.SourceInfo, 0, len(paths))
	for _, p := range paths {
		info, err := probe(p)
		if err != nil {
			return nil, nil, domain.WrapConfiguration(fmt.Errorf("probe source %q: %w", p, err))
		}
		infos = append(infos, info)
	}
	return infos, paths, nil
}

// AggregateSources folds resolved (SourceInfo, mediaPath) pairs into
// per-source aggregates and merges overlapping split-recording segments.
func AggregateSources(infos []domain.SourceInfo, paths []string) map[domain.SourceID]*domain.AggregatedSourceInfo {
	result := make(map[domain.SourceID]*domain.AggregatedSourceInfo)
	for i, info := range infos {
		agg, ok := result[info.ID]
		if !ok {
			a := domain.NewAggregatedSourceInfo()
			agg = &a
			result[info.ID] = agg
		}
		agg.Update(info, paths[i])
	}
	for _, agg := range result {
		agg.MergeOverlappingSegments()
	}
	return result
}

func mediaFileExists(sourceFilePath string) bool {
	base := strings.TrimSuffix(sourceFilePath, filepath.Ext(sourceFilePath))
	for _, ext := range []string{"webm", "mp4"} {
		if _, err := os.Stat(base + "." + ext); err == nil {
			return true
		}
	}
	return false
}

// isWildcardNameMatched reports whether name matches wildcardName, where
// '*' in wildcardName matches any run of characters (including none).
func isWildcardNameMatched(wildcardName, name string) bool {
	tokens := strings.Split(wildcardName, "*")
	first := true
	for _, token := range tokens {
		if first {
			if !strings.HasPrefix(name, token) {
				return false
			}
			name = name[len(token):]
			first = false
			continue
		}
		idx := strings.Index(name, token)
		if idx == -1 {
			return false
		}
		name = name[idx+len(token):]
	}
	return strings.HasSuffix(wildcardName, "*") || name == ""
}
