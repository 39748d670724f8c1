// Package programs finds the PostgreSQL client programs on the host.
package programs

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// ErrNotInstalled means at least one of pg_dump, pg_restore and psql could
// not be found. Backup features are disabled as a whole in that case.
var ErrNotInstalled = errors.New("pg_dump, pg_restore and psql must be installed")

// Programs holds absolute paths of the detected client programs.
type Programs struct {
	OS        string `json:"os"`
	Version   string `json:"version"`
	PGDump    string `json:"pg_dump"`
	PGDumpAll string `json:"pg_dumpall"`
	PGRestore string `json:"pg_restore"`
	PSQL      string `json:"psql"`
}

// Path returns the location of the named program, or "" if unknown.
func (p Programs) Path(name string) string {
	switch name {
	case "pg_dump":
		return p.PGDump
	case "pg_dumpall":
		return p.PGDumpAll
	case "pg_restore":
		return p.PGRestore
	case "psql":
		return p.PSQL
	default:
		return ""
	}
}

// DataDirFunc reports the server's data directory; used for the Windows
// layout where the bin directory sits next to it.
type DataDirFunc func(ctx context.Context) (string, error)

// Detector looks the programs up once and remembers the outcome until Reset.
type Detector struct {
	binDir  string
	dataDir DataDirFunc
	goos    string

	lookPath func(file string) (string, error)
	version  func(ctx context.Context, path string) (string, error)

	mu       sync.Mutex
	detected bool
	result   Programs
	err      error
}

func NewDetector(binDir string, dataDir DataDirFunc) *Detector {
	return &Detector{
		binDir:   binDir,
		dataDir:  dataDir,
		goos:     runtime.GOOS,
		lookPath: exec.LookPath,
		version:  readVersion,
	}
}

// Detect returns the memoized detection result.
func (d *Detector) Detect(ctx context.Context) (Programs, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.detected {
		d.result, d.err = d.detect(ctx)
		d.detected = true
	}
	return d.result, d.err
}

// Reset forgets the memoized result, e.g. after the operator installed the
// client tools.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detected = false
	d.result, d.err = Programs{}, nil
}

func (d *Detector) detect(ctx context.Context) (Programs, error) {
	ext := ""
	if d.goos == "windows" {
		ext = ".exe"
	}

	if d.binDir != "" {
		return d.scanDir(ctx, d.binDir, ext)
	}

	p, err := d.searchPath(ctx, ext)
	if err == nil {
		return p, nil
	}
	if d.dataDir == nil {
		return Programs{}, err
	}

	// The Windows installer does not put the client tools on PATH; they
	// live in <install>/bin next to <install>/data.
	dir, derr := d.dataDir(ctx)
	if derr != nil || dir == "" {
		return Programs{}, err
	}
	return d.scanDir(ctx, filepath.Join(filepath.Dir(dir), "bin"), ext)
}

func (d *Detector) searchPath(ctx context.Context, ext string) (Programs, error) {
	found := make(map[string]string, 3)
	for _, name := range []string{"pg_dump", "pg_restore", "psql"} {
		path, err := d.lookPath(name + ext)
		if err != nil {
			return Programs{}, fmt.Errorf("%w: %s: %v", ErrNotInstalled, name, err)
		}
		found[name] = path
	}
	p := Programs{
		OS:        d.goos,
		PGDump:    found["pg_dump"],
		PGRestore: found["pg_restore"],
		PSQL:      found["psql"],
	}
	return d.finish(ctx, p, ext)
}

func (d *Detector) scanDir(ctx context.Context, dir, ext string) (Programs, error) {
	p := Programs{
		OS:        d.goos,
		PGDump:    filepath.Join(dir, "pg_dump"+ext),
		PGRestore: filepath.Join(dir, "pg_restore"+ext),
		PSQL:      filepath.Join(dir, "psql"+ext),
	}
	return d.finish(ctx, p, ext)
}

// finish confirms each program runs and fills in the version.
func (d *Detector) finish(ctx context.Context, p Programs, ext string) (Programs, error) {
	for _, path := range []string{p.PGDump, p.PGRestore, p.PSQL} {
		v, err := d.version(ctx, path)
		if err != nil {
			return Programs{}, fmt.Errorf("%w: %s: %v", ErrNotInstalled, path, err)
		}
		if p.Version == "" {
			p.Version = v
		}
	}
	p.PGDumpAll = filepath.Join(filepath.Dir(p.PGDump), "pg_dumpall"+ext)
	return p, nil
}

// readVersion runs "<path> --version" and returns the version number,
// e.g. "16.2" from "pg_dump (PostgreSQL) 16.2".
func readVersion(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		return "", err
	}
	return ParseVersion(string(out)), nil
}

// ParseVersion extracts the last field of the first line.
func ParseVersion(out string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}
