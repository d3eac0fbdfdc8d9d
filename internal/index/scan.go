package index

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
	"golang.org/x/text/unicode/norm"

	"tether/internal/logging"
)

// Scanner walks a workspace and reconciles the store with what it finds.
type Scanner struct {
	workspace string
	exclude   map[string]struct{}
	logger    *slog.Logger
}

// NewScanner builds a scanner rooted at workspace. Names in exclude are
// skipped wherever they appear in the tree.
func NewScanner(workspace string, exclude []string, logger *slog.Logger) *Scanner {
	set := make(map[string]struct{}, len(exclude))
	for _, name := range exclude {
		set[name] = struct{}{}
	}
	return &Scanner{
		workspace: workspace,
		exclude:   set,
		logger:    logging.NewComponentLogger(logger, "index"),
	}
}

// Result summarizes one scan.
type Result struct {
	Fingerprint uint64
	FileCount   int64
	// Hashed counts files whose content was re-read; Reused counts files
	// whose size and mtime matched the stored entry.
	Hashed int
	Reused int
}

// Scan walks the workspace, upserts changed files, prunes deleted ones,
// and recomputes the index fingerprint. Files whose size and modification
// time are unchanged keep their stored hash without re-reading content.
func (sc *Scanner) Scan(ctx context.Context, store *Store) (Result, error) {
	var result Result
	seen := make(map[string]struct{})

	err := filepath.WalkDir(sc.workspace, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		name := d.Name()
		if _, excluded := sc.exclude[name]; excluded && path != sc.workspace {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(sc.workspace, path)
		if err != nil {
			return fmt.Errorf("relativize %q: %w", path, err)
		}
		// Normalized slash paths keep fingerprints identical across
		// platforms and filesystems with different unicode forms.
		rel = norm.NFC.String(filepath.ToSlash(rel))

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %q: %w", path, err)
		}

		entry := Entry{Path: rel, Size: info.Size(), MtimeNS: info.ModTime().UnixNano()}
		prior, err := store.Get(ctx, rel)
		if err != nil {
			return err
		}
		if prior != nil && prior.Size == entry.Size && prior.MtimeNS == entry.MtimeNS {
			entry.Hash = prior.Hash
			result.Reused++
		} else {
			hash, err := hashFile(path)
			if err != nil {
				return err
			}
			entry.Hash = hash
			result.Hashed++
		}

		if err := store.Upsert(ctx, entry); err != nil {
			return err
		}
		seen[rel] = struct{}{}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("scan workspace: %w", err)
	}

	if err := store.Prune(ctx, seen); err != nil {
		return Result{}, err
	}

	fingerprint, count, err := computeFingerprint(ctx, store)
	if err != nil {
		return Result{}, err
	}
	if err := store.SetFingerprint(ctx, fingerprint); err != nil {
		return Result{}, err
	}

	result.Fingerprint = fingerprint
	result.FileCount = count
	sc.logger.Debug("workspace scanned",
		logging.Uint64("fingerprint", fingerprint),
		logging.Int64("files", count),
		logging.Int("hashed", result.Hashed),
		logging.Int("reused", result.Reused))
	return result, nil
}

// computeFingerprint hashes the sorted path→hash sequence into the single
// uint64 that travels over the wire.
func computeFingerprint(ctx context.Context, store *Store) (uint64, int64, error) {
	entries, err := store.Entries(ctx)
	if err != nil {
		return 0, 0, err
	}
	hasher := blake3.New()
	for _, e := range entries {
		hasher.Write([]byte(e.Path))
		hasher.Write([]byte{0})
		hasher.Write(e.Hash)
	}
	sum := hasher.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8]), int64(len(entries)), nil
}

func hashFile(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %q for hashing: %w", path, err)
	}
	defer file.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return nil, fmt.Errorf("hash %q: %w", path, err)
	}
	return hasher.Sum(nil), nil
}
