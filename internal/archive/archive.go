// Package archive recursively expands zip, tar, tar.gz/.tz, and 7z archives
// into their parent directory, applying the name-uniqueness rule and
// feeding the lineage tracker as it goes. Grounded on
// internal/orchestrator/extractor.go (archive/zip streaming, one entry at a
// time, explicit close-then-check-error) and the original's extractZip/
// extractTar/extractTz/extract7z methods (org.ft.services.FileProcessorService).
// The source archive is removed only once every entry, including nested
// ones, has been written successfully.
package archive

import (
	"archive/tar"
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/klauspost/compress/gzip"

	"github.com/arclake/ingestord/internal/lineage"
)

// IsCompressed reports whether name's lower-cased extension marks it as an
// archive the extractor understands.
func IsCompressed(name string) bool {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".zip"),
		strings.HasSuffix(lower, ".tar"),
		strings.HasSuffix(lower, ".tar.gz"),
		strings.HasSuffix(lower, ".tz"),
		strings.HasSuffix(lower, ".7z"):
		return true
	default:
		return false
	}
}

// ExtractedFile is one file that landed on disk as a direct or transitive
// result of extracting an archive.
type ExtractedFile struct {
	Path     string
	Size     int64
	Collided bool // true if the name-uniqueness rule had to suffix this path
}

// Extract expands archivePath's entries into its parent directory.
// parentArchiveName is the name under which archivePath itself is already
// tracked (its own working-directory name) -- every file this call writes
// is recorded as extracted from it. Nested archives discovered among the
// written entries are extracted recursively in place before Extract
// returns, so the full transitive set of written files comes back in one
// slice. archivePath is deleted only if every step below succeeded.
func Extract(archivePath, parentArchiveName string, tracker *lineage.Tracker, logger *slog.Logger) ([]ExtractedFile, error) {
	lower := strings.ToLower(archivePath)
	var written []ExtractedFile
	var err error

	switch {
	case strings.HasSuffix(lower, ".zip"):
		written, err = extractZip(archivePath, parentArchiveName, tracker, logger)
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tz"):
		written, err = extractGzippedTar(archivePath, parentArchiveName, tracker, logger)
	case strings.HasSuffix(lower, ".tar"):
		written, err = extractTar(archivePath, parentArchiveName, tracker, logger)
	case strings.HasSuffix(lower, ".7z"):
		written, err = extract7z(archivePath, parentArchiveName, tracker, logger)
	default:
		return nil, fmt.Errorf("unsupported archive type: %s", archivePath)
	}
	if err != nil {
		return written, err
	}

	if err := os.Remove(archivePath); err != nil {
		logger.Warn("failed to remove archive after successful extraction", "path", archivePath, "error", err)
	}
	return written, nil
}

// extractZip streams every entry of a zip archive to disk, recursing into
// any entry that is itself a compressed file.
func extractZip(archivePath, parentArchiveName string, tracker *lineage.Tracker, logger *slog.Logger) ([]ExtractedFile, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open zip %s: %w", archivePath, err)
	}
	defer zr.Close()

	dir := filepath.Dir(archivePath)
	var out []ExtractedFile
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(filepath.Join(dir, f.Name), 0o755); err != nil {
				return out, fmt.Errorf("mkdir entry %s: %w", f.Name, err)
			}
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return out, fmt.Errorf("open entry %s in %s: %w", f.Name, archivePath, err)
		}
		written, err := writeEntry(dir, filepath.Base(f.Name), rc, int64(f.UncompressedSize64), parentArchiveName, tracker, logger)
		rc.Close()
		if err != nil {
			return out, err
		}
		out = append(out, written...)
	}
	return out, nil
}

// extractTar streams every entry of a tar archive to disk.
func extractTar(archivePath, parentArchiveName string, tracker *lineage.Tracker, logger *slog.Logger) ([]ExtractedFile, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open tar %s: %w", archivePath, err)
	}
	defer f.Close()
	return extractTarStream(f, filepath.Dir(archivePath), parentArchiveName, tracker, logger)
}

// extractGzippedTar decompresses the outer gzip into an intermediate .tar
// in the same directory, recursively extracts that tar, then deletes the
// intermediate. Handles both ".tz" and ".tar.gz" naming.
func extractGzippedTar(archivePath, parentArchiveName string, tracker *lineage.Tracker, logger *slog.Logger) ([]ExtractedFile, error) {
	src, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", archivePath, err)
	}
	defer src.Close()

	gzr, err := gzip.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("gzip reader for %s: %w", archivePath, err)
	}
	defer gzr.Close()

	intermediate := intermediateTarPath(archivePath)
	out, err := os.Create(intermediate)
	if err != nil {
		return nil, fmt.Errorf("create intermediate tar %s: %w", intermediate, err)
	}
	if _, err := io.Copy(out, gzr); err != nil {
		out.Close()
		os.Remove(intermediate)
		return nil, fmt.Errorf("decompress %s: %w", archivePath, err)
	}
	out.Close()

	written, err := extractTar(intermediate, parentArchiveName, tracker, logger)
	if err != nil {
		// the intermediate tar is itself debris; leave it for the next sweep
		// to re-classify, same as any other partially extracted child.
		return written, fmt.Errorf("extract intermediate tar for %s: %w", archivePath, err)
	}
	if err := os.Remove(intermediate); err != nil {
		logger.Warn("failed to remove intermediate tar", "path", intermediate, "error", err)
	}
	return written, nil
}

// intermediateTarPath derives the decompressed tar's path from a ".tz" or
// ".tar.gz" source, without doubling the ".tar" suffix the latter already
// carries: "foo.tar.gz" becomes "foo.tar", and "foo.tz" becomes "foo.tar".
func intermediateTarPath(archivePath string) string {
	if strings.HasSuffix(strings.ToLower(archivePath), ".tar.gz") {
		return strings.TrimSuffix(archivePath, filepath.Ext(archivePath))
	}
	return strings.TrimSuffix(archivePath, filepath.Ext(archivePath)) + ".tar"
}

func extractTarStream(r io.Reader, dir, parentArchiveName string, tracker *lineage.Tracker, logger *slog.Logger) ([]ExtractedFile, error) {
	tr := tar.NewReader(r)
	var out []ExtractedFile
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return out, fmt.Errorf("read tar entry: %w", err)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(filepath.Join(dir, hdr.Name), 0o755); err != nil {
				return out, fmt.Errorf("mkdir entry %s: %w", hdr.Name, err)
			}
		case tar.TypeReg:
			written, err := writeEntry(dir, filepath.Base(hdr.Name), tr, hdr.Size, parentArchiveName, tracker, logger)
			if err != nil {
				return out, err
			}
			out = append(out, written...)
		}
	}
	return out, nil
}

// extract7z expands a 7z archive using the ecosystem's sevenzip reader,
// since Go's standard library has no 7z support and nothing in the
// retrieval pack demonstrates one either.
func extract7z(archivePath, parentArchiveName string, tracker *lineage.Tracker, logger *slog.Logger) ([]ExtractedFile, error) {
	zr, err := sevenzip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open 7z %s: %w", archivePath, err)
	}
	defer zr.Close()

	dir := filepath.Dir(archivePath)
	var out []ExtractedFile
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(filepath.Join(dir, f.Name), 0o755); err != nil {
				return out, fmt.Errorf("mkdir entry %s: %w", f.Name, err)
			}
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return out, fmt.Errorf("open entry %s in %s: %w", f.Name, archivePath, err)
		}
		written, err := writeEntry(dir, filepath.Base(f.Name), rc, int64(f.UncompressedSize), parentArchiveName, tracker, logger)
		rc.Close()
		if err != nil {
			return out, err
		}
		out = append(out, written...)
	}
	return out, nil
}

// writeEntry applies the name-uniqueness rule, streams the entry to disk,
// tracks it as extracted from parentArchiveName, and
// recurses if the written file is itself a compressed archive. It returns
// every file this single entry ultimately produced (itself, plus anything
// its own recursive extraction wrote).
func writeEntry(dir, name string, r io.Reader, size int64, parentArchiveName string, tracker *lineage.Tracker, logger *slog.Logger) ([]ExtractedFile, error) {
	path, collided := UniquePath(filepath.Join(dir, name))

	out, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	written, err := io.Copy(out, r)
	closeErr := out.Close()
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("write %s: %w", path, err)
	}
	if closeErr != nil {
		os.Remove(path)
		return nil, fmt.Errorf("close %s: %w", path, closeErr)
	}

	entryName := filepath.Base(path)
	tracker.TrackExtracted(entryName, parentArchiveName, written)
	result := []ExtractedFile{{Path: path, Size: written, Collided: collided}}

	if IsCompressed(path) {
		nested, err := Extract(path, entryName, tracker, logger)
		if err != nil {
			logger.Error("failed to extract nested archive", "path", path, "error", err)
			return result, fmt.Errorf("extract nested archive %s: %w", path, err)
		}
		result = append(result, nested...)
	}
	return result, nil
}

// UniquePath implements the name-uniqueness rule: if the candidate path
// does not exist, it is used as-is; otherwise "(k)" is inserted before the
// extension for increasing k until a free path is found. collided reports
// whether the original candidate was already occupied, which callers use
// to route the newcomer to quarantine.
func UniquePath(candidate string) (path string, collided bool) {
	if _, err := os.Stat(candidate); os.IsNotExist(err) {
		return candidate, false
	}

	dir := filepath.Dir(candidate)
	base := filepath.Base(candidate)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	for k := 1; ; k++ {
		try := filepath.Join(dir, fmt.Sprintf("%s(%d)%s", stem, k, ext))
		if _, err := os.Stat(try); os.IsNotExist(err) {
			return try, true
		}
	}
}
