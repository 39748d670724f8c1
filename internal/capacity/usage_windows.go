//go:build windows

package capacity

import "golang.org/x/sys/windows"

func diskUsage(path string) (Usage, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return Usage{}, err
	}
	var freeAvail, total, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(p, &freeAvail, &total, &totalFree); err != nil {
		return Usage{}, err
	}
	return Usage{Free: int64(freeAvail), Total: int64(total)}, nil
}
