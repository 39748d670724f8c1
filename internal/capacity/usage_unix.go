//go:build unix

package capacity

import "golang.org/x/sys/unix"

func diskUsage(path string) (Usage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Usage{}, err
	}
	bsize := uint64(st.Bsize)
	return Usage{
		Free:  int64(uint64(st.Bavail) * bsize),
		Total: int64(uint64(st.Blocks) * bsize),
	}, nil
}
