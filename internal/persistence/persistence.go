// Package persistence bridges the in-memory lineage tracker to the
// bundler's Candidate values, from which bundle_tracking rows are built,
// so neither the bundler nor the pipeline needs to know how a FileInfo
// record is looked up. Error-log rows are built by the quarantine stage.
package persistence

import (
	"os"
	"path/filepath"

	"github.com/arclake/ingestord/internal/bundler"
	"github.com/arclake/ingestord/internal/lineage"
)

// Candidates turns a list of file paths classified as ready for bundling
// into bundler.Candidate values, pulling each one's lineage record from
// tracker. A file the tracker has no record for (should not happen once
// the extractor and quarantine stage have run) is skipped rather than
// bundled with a fabricated origin.
func Candidates(tracker *lineage.Tracker, paths []string) []bundler.Candidate {
	out := make([]bundler.Candidate, 0, len(paths))
	for _, path := range paths {
		name := filepath.Base(path)
		info, ok := tracker.Info(name)
		if !ok {
			continue
		}
		size := info.SizeBytes
		if size == 0 {
			if fi, err := os.Stat(path); err == nil {
				size = fi.Size()
			}
		}
		out = append(out, bundler.Candidate{
			Path: path,
			Name: name,
			Size: size,
			Info: info,
		})
	}
	return out
}
