package backup

import (
	"context"

	"github.com/edvin/pgbackup/internal/capacity"
	"github.com/edvin/pgbackup/internal/model"
)

// CheckSpace reports whether a local dump of connectionID with opts fits on
// the backup filesystem.
func (m *Manager) CheckSpace(ctx context.Context, connectionID string, opts model.DumpOptions) (capacity.Result, error) {
	conn, err := m.conns.GetConnection(ctx, connectionID)
	if err != nil {
		return capacity.Result{}, err
	}
	size, err := m.dumpSize(ctx, *conn, opts)
	if err != nil {
		return capacity.Result{}, err
	}
	return m.checkSpace(size, opts)
}

// dumpSize is the size of what opts dumps: the cluster for pg_dumpall,
// otherwise the connection's database.
func (m *Manager) dumpSize(ctx context.Context, conn model.Connection, opts model.DumpOptions) (int64, error) {
	if opts.IsDumpAll() {
		return m.target.ClusterSize(ctx, conn)
	}
	return m.target.DatabaseSize(ctx, conn)
}

func (m *Manager) checkSpace(dbSize int64, opts model.DumpOptions) (capacity.Result, error) {
	// Only the free-space floor applies to a cluster dump.
	if opts.IsDumpAll() {
		dbSize = -1
	}
	return m.capacity.Check(dbSize)
}
