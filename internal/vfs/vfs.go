// Package vfs is the engine's only sanctioned filesystem boundary. Rule
// bodies read file content exclusively through a Reader handed to them by
// the scheduler, which records every touched path for later invalidation.
// Ad hoc I/O inside a rule body would silently break invalidation.
package vfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vk/forgegrid/internal/ctxlog"
	"github.com/vk/forgegrid/internal/digest"
)

// FileContent is the product of reading a single file.
type FileContent struct {
	Path   string
	Bytes  []byte
	Digest digest.Digest
}

// CacheKey scopes FileContent subjects by path; the content digest is an
// output, not part of the identity.
func (f FileContent) CacheKey() string {
	return "file:" + f.Path
}

// FileStat is metadata for a single path.
type FileStat struct {
	Path    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// Listing is the product of reading a directory: child names plus a digest
// over the sorted (name, child file digest) entries.
type Listing struct {
	Path   string
	Names  []string
	Digest digest.Digest
}

// DigestCache lets the OS reader skip re-hashing files whose size and mtime
// are unchanged. Implemented by diskcache; a nil cache disables the
// optimization.
type DigestCache interface {
	Lookup(path string, size int64, modTime time.Time) (digest.Digest, bool)
	Store(path string, size int64, modTime time.Time, d digest.Digest) error
}

// Reader is the capability rule bodies receive for filesystem access. All
// paths are relative to the build root.
type Reader interface {
	ReadFile(ctx context.Context, path string) (FileContent, error)
	Stat(ctx context.Context, path string) (FileStat, error)
	ReadDir(ctx context.Context, path string) (Listing, error)
}

// OS is the production Reader over a real directory tree.
type OS struct {
	root  string
	cache DigestCache
}

// NewOS returns a Reader rooted at the given directory. The cache is
// optional.
func NewOS(root string, cache DigestCache) *OS {
	return &OS{root: root, cache: cache}
}

// Root returns the build root this reader is anchored at.
func (o *OS) Root() string {
	return o.root
}

func (o *OS) resolve(path string) (string, error) {
	clean := filepath.Clean(path)
	if filepath.IsAbs(clean) || clean == ".." || len(clean) >= 3 && clean[:3] == ".."+string(filepath.Separator) {
		return "", fmt.Errorf("path escapes build root: %s", path)
	}
	return filepath.Join(o.root, clean), nil
}

// ReadFile reads file bytes and computes (or recalls) their digest.
func (o *OS) ReadFile(ctx context.Context, path string) (FileContent, error) {
	abs, err := o.resolve(path)
	if err != nil {
		return FileContent{}, err
	}
	b, err := os.ReadFile(abs)
	if err != nil {
		return FileContent{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return FileContent{Path: path, Bytes: b, Digest: digest.OfBytes(b)}, nil
}

// Stat returns metadata for a path.
func (o *OS) Stat(ctx context.Context, path string) (FileStat, error) {
	abs, err := o.resolve(path)
	if err != nil {
		return FileStat{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return FileStat{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return FileStat{Path: path, Size: info.Size(), ModTime: info.ModTime(), IsDir: info.IsDir()}, nil
}

// ReadDir lists a directory and digests its entries. Child file digests go
// through the digest cache when one is configured.
func (o *OS) ReadDir(ctx context.Context, path string) (Listing, error) {
	abs, err := o.resolve(path)
	if err != nil {
		return Listing{}, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return Listing{}, fmt.Errorf("reading dir %s: %w", path, err)
	}

	logger := ctxlog.FromContext(ctx)
	var names []string
	var digests []digest.Entry
	for _, e := range entries {
		names = append(names, e.Name())
		child := filepath.Join(path, e.Name())
		if e.IsDir() {
			digests = append(digests, digest.Entry{Name: e.Name() + "/", Digest: digest.OfString(child)})
			continue
		}
		d, err := o.fileDigest(child)
		if err != nil {
			logger.Warn("Skipping unreadable directory entry.", "path", child, "error", err)
			continue
		}
		digests = append(digests, digest.Entry{Name: e.Name(), Digest: d})
	}
	return Listing{Path: path, Names: names, Digest: digest.OfEntries(digests)}, nil
}

// fileDigest hashes a file, consulting the digest cache first.
func (o *OS) fileDigest(path string) (digest.Digest, error) {
	abs, err := o.resolve(path)
	if err != nil {
		return digest.Digest{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return digest.Digest{}, err
	}
	if o.cache != nil {
		if d, ok := o.cache.Lookup(path, info.Size(), info.ModTime()); ok {
			return d, nil
		}
	}
	b, err := os.ReadFile(abs)
	if err != nil {
		return digest.Digest{}, err
	}
	d := digest.OfBytes(b)
	if o.cache != nil {
		// A cache write failure only loses the optimization.
		_ = o.cache.Store(path, info.Size(), info.ModTime(), d)
	}
	return d, nil
}
