package runner

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultResolverCacheSize = 128

// Resolver finds the executable for a command's first token using the
// child's PATH rather than the caller's. Hits are cached and re-checked.
type Resolver struct {
	cache *lru.Cache[string, string]
}

func NewResolver(size int) *Resolver {
	if size <= 0 {
		size = defaultResolverCacheSize
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		panic(fmt.Sprintf("resolver cache: %v", err))
	}
	return &Resolver{cache: cache}
}

// Resolve returns the path to run for name. Names containing a path
// separator are returned as-is once they are confirmed to exist relative
// to dir.
func (r *Resolver) Resolve(name string, pathEnv string, dir string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty executable name: %w", exec.ErrNotFound)
	}
	if strings.ContainsAny(name, pathSeparators) {
		candidate := name
		if !filepath.IsAbs(candidate) && dir != "" {
			candidate = filepath.Join(dir, candidate)
		}
		if _, ok := findExecutable(filepath.Dir(candidate), filepath.Base(candidate)); ok {
			return name, nil
		}
		return "", fmt.Errorf("%s: %w", name, exec.ErrNotFound)
	}

	key := pathEnv + "\x00" + name
	if cached, ok := r.cache.Get(key); ok {
		if _, ok := findExecutable(filepath.Dir(cached), filepath.Base(cached)); ok {
			return cached, nil
		}
		r.cache.Remove(key)
	}

	for _, entry := range filepath.SplitList(pathEnv) {
		// Relative PATH entries are ignored, matching exec.LookPath's refusal
		// to run binaries found via the current directory.
		if entry == "" || !filepath.IsAbs(entry) {
			continue
		}
		if path, ok := findExecutable(entry, name); ok {
			r.cache.Add(key, path)
			return path, nil
		}
	}
	return "", fmt.Errorf("%s: %w", name, exec.ErrNotFound)
}

func (r *Resolver) Len() int {
	return r.cache.Len()
}

func isRegular(path string) (os.FileInfo, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, false
	}
	return info, true
}
