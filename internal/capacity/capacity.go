// Package capacity decides whether the local disk can hold another backup.
package capacity

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/edvin/pgbackup/internal/platform"
)

const (
	DefaultMinFree = 100_000_000
	DefaultFactor  = 1.1
)

// Usage is a filesystem's size and the space available to this process.
type Usage struct {
	Free  int64
	Total int64
}

// Result carries both measurements so callers can explain a refusal.
type Result struct {
	OK       bool  `json:"ok"`
	Free     int64 `json:"free_bytes"`
	Total    int64 `json:"total_bytes"`
	DBSize   int64 `json:"db_size_bytes"`
	Required int64 `json:"required_bytes"`
}

// Error is returned when a Result is not OK.
type Error struct {
	Result
}

func (e *Error) Error() string {
	return fmt.Sprintf(
		"not enough space on server for local backups: free %s of %s total, database size %s, required %s",
		platform.Bytes(e.Free), platform.Bytes(e.Total), platform.Bytes(e.DBSize), platform.Bytes(e.Required))
}

// IsCapacityError reports whether err is a refused capacity check.
func IsCapacityError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}

type Checker struct {
	Root    string
	MinFree int64
	Factor  float64

	usage func(path string) (Usage, error)
}

func NewChecker(root string, minFree int64) *Checker {
	if minFree <= 0 {
		minFree = DefaultMinFree
	}
	return &Checker{Root: root, MinFree: minFree, Factor: DefaultFactor, usage: diskUsage}
}

// Check measures free space under Root against dbSize. Free space must be
// at least MinFree and at least Factor times dbSize. A negative dbSize means
// the size is unknown, as for whole-cluster dumps, and only the floor applies.
func (c *Checker) Check(dbSize int64) (Result, error) {
	u, err := c.usage(existingParent(c.Root))
	if err != nil {
		return Result{}, fmt.Errorf("measure free disk space: %w", err)
	}

	required := c.MinFree
	if dbSize >= 0 {
		if byFactor := int64(float64(dbSize) * c.Factor); byFactor > required {
			required = byFactor
		}
	}
	r := Result{Free: u.Free, Total: u.Total, DBSize: dbSize, Required: required}
	if dbSize < 0 {
		r.DBSize = 0
	}
	r.OK = u.Free >= required
	if !r.OK {
		return r, &Error{Result: r}
	}
	return r, nil
}

// existingParent walks up until it finds a directory that exists, so the
// check works before the backup root was created.
func existingParent(p string) string {
	p = filepath.Clean(p)
	for {
		if _, err := os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			return p
		}
		p = parent
	}
}
