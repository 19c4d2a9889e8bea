package generate

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DirContext holds gathered project context for one directory.
type DirContext struct {
	Path           string
	ProjectType    string // rust, node, go, python, make, ""
	ProjectName    string
	PackageManager string // detected from lockfile (pnpm, yarn, bun, npm, cargo)
	GitBranch      string
	MakeTargets    []string
	Scripts        []string // package.json script names
	CargoBins      []string
	GoModule       string
	HasDockerfile  bool
}

const (
	dirCacheTTL   = 1 * time.Hour
	gatherTimeout = 500 * time.Millisecond
	maxTargets    = 32
)

// DirCache is a TTL cache of DirContext entries keyed by absolute path.
type DirCache struct {
	cache  *ttlcache.Cache[string, *DirContext]
	logger *zap.Logger
}

// NewDirCache creates a new DirCache with TTL-based expiration.
func NewDirCache(logger *zap.Logger) *DirCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := ttlcache.New[string, *DirContext](
		ttlcache.WithTTL[string, *DirContext](dirCacheTTL),
		ttlcache.WithDisableTouchOnHit[string, *DirContext](),
	)
	go c.Start()
	return &DirCache{cache: c, logger: logger}
}

// Close stops the cache expiration loop.
func (dc *DirCache) Close() {
	dc.cache.Stop()
}

// Get returns the cached DirContext for the given path, or nil if not
// cached or expired.
func (dc *DirCache) Get(absPath string) *DirContext {
	item := dc.cache.Get(absPath)
	if item == nil {
		return nil
	}
	return item.Value()
}

// GetOrGather returns the cached DirContext, gathering synchronously on a
// miss.
func (dc *DirCache) GetOrGather(ctx context.Context, cwd string) *DirContext {
	if entry := dc.Get(cwd); entry != nil {
		return entry
	}
	return dc.Gather(ctx, cwd)
}

// Gather collects project context for the given directory and caches it.
// Everything is derived from file reads; no subprocesses.
func (dc *DirCache) Gather(ctx context.Context, cwd string) *DirContext {
	ctx, cancel := context.WithTimeout(ctx, gatherTimeout)
	defer cancel()

	entry := &DirContext{Path: cwd}

	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		entry.GitBranch = readGitBranch(cwd)
		return nil
	})
	g.Go(func() error {
		dc.gatherManifests(cwd, entry)
		return nil
	})
	g.Go(func() error {
		entry.PackageManager = detectPackageManager(cwd)
		return nil
	})
	g.Wait()

	dc.cache.Set(cwd, entry, ttlcache.DefaultTTL)
	dc.logger.Debug("gathered directory context",
		zap.String("path", cwd), zap.String("type", entry.ProjectType))
	return entry
}

// gatherManifests inspects well-known manifest files and fills in the
// project type and its runnable targets.
func (dc *DirCache) gatherManifests(dir string, entry *DirContext) {
	if data, err := os.ReadFile(filepath.Join(dir, "Cargo.toml")); err == nil {
		entry.ProjectType = "rust"
		name, bins := parseCargoToml(data)
		entry.ProjectName = name
		entry.CargoBins = bins
	}
	if data, err := os.ReadFile(filepath.Join(dir, "package.json")); err == nil {
		if entry.ProjectType == "" {
			entry.ProjectType = "node"
		}
		name, scripts := parsePackageJSON(data)
		if entry.ProjectName == "" {
			entry.ProjectName = name
		}
		entry.Scripts = scripts
	}
	if data, err := os.ReadFile(filepath.Join(dir, "go.mod")); err == nil {
		if entry.ProjectType == "" {
			entry.ProjectType = "go"
		}
		entry.GoModule = parseGoModule(data)
		if entry.ProjectName == "" {
			entry.ProjectName = filepath.Base(entry.GoModule)
		}
	}
	if data, err := os.ReadFile(filepath.Join(dir, "pyproject.toml")); err == nil {
		if entry.ProjectType == "" {
			entry.ProjectType = "python"
		}
		if name := parsePyprojectToml(data); name != "" && entry.ProjectName == "" {
			entry.ProjectName = name
		}
	} else if fileExists(filepath.Join(dir, "requirements.txt")) {
		if entry.ProjectType == "" {
			entry.ProjectType = "python"
		}
	}
	if data, err := os.ReadFile(filepath.Join(dir, "Makefile")); err == nil {
		if entry.ProjectType == "" {
			entry.ProjectType = "make"
		}
		entry.MakeTargets = parseMakefileTargets(data)
	}
	entry.HasDockerfile = fileExists(filepath.Join(dir, "Dockerfile"))
}

// readGitBranch resolves the current branch by reading .git/HEAD, walking
// up from dir to find the repository root. Detached HEADs and unreadable
// repos yield "".
func readGitBranch(dir string) string {
	for d := dir; ; {
		head := filepath.Join(d, ".git", "HEAD")
		if data, err := os.ReadFile(head); err == nil {
			ref := strings.TrimSpace(string(data))
			const prefix = "ref: refs/heads/"
			if strings.HasPrefix(ref, prefix) {
				return strings.TrimPrefix(ref, prefix)
			}
			return ""
		}
		parent := filepath.Dir(d)
		if parent == d {
			return ""
		}
		d = parent
	}
}

type cargoToml struct {
	Package struct {
		Name string `toml:"name"`
	} `toml:"package"`
	Bin []struct {
		Name string `toml:"name"`
	} `toml:"bin"`
}

func parseCargoToml(data []byte) (name string, bins []string) {
	var cargo cargoToml
	if err := toml.Unmarshal(data, &cargo); err != nil {
		return "", nil
	}
	for _, bin := range cargo.Bin {
		if bin.Name != "" {
			bins = append(bins, bin.Name)
		}
	}
	return cargo.Package.Name, bins
}

type pyprojectToml struct {
	Project struct {
		Name string `toml:"name"`
	} `toml:"project"`
}

func parsePyprojectToml(data []byte) string {
	var pyproject pyprojectToml
	if err := toml.Unmarshal(data, &pyproject); err != nil {
		return ""
	}
	return pyproject.Project.Name
}

func parsePackageJSON(data []byte) (name string, scripts []string) {
	var pkg struct {
		Name    string                     `json:"name"`
		Scripts map[string]json.RawMessage `json:"scripts"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return "", nil
	}
	for script := range pkg.Scripts {
		scripts = append(scripts, script)
	}
	sort.Strings(scripts)
	if len(scripts) > maxTargets {
		scripts = scripts[:maxTargets]
	}
	return pkg.Name, scripts
}

func parseGoModule(data []byte) string {
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "module ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "module "))
		}
	}
	return ""
}

// parseMakefileTargets extracts plain target names from a Makefile. Recipe
// lines, comments, pattern rules and variable assignments are skipped.
func parseMakefileTargets(data []byte) []string {
	var targets []string
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 || line[0] == '\t' || line[0] == '#' || line[0] == '.' {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx <= 0 {
			continue
		}
		if idx+1 < len(line) && line[idx+1] == '=' {
			continue
		}
		target := strings.TrimSpace(line[:idx])
		if target == "" || strings.ContainsAny(target, "$% \t") {
			continue
		}
		if !seen[target] {
			seen[target] = true
			targets = append(targets, target)
		}
		if len(targets) >= maxTargets {
			break
		}
	}
	return targets
}

// lockfileMap maps lockfile names to package manager names, more specific
// lockfiles first.
var lockfileMap = []struct {
	file    string
	manager string
}{
	{"pnpm-lock.yaml", "pnpm"},
	{"yarn.lock", "yarn"},
	{"bun.lockb", "bun"},
	{"package-lock.json", "npm"},
	{"Cargo.lock", "cargo"},
}

func detectPackageManager(dir string) string {
	for _, lf := range lockfileMap {
		if fileExists(filepath.Join(dir, lf.file)) {
			return lf.manager
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
