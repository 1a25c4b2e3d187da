package keyValStore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/fscrypt/filesystem"
	"github.com/shirou/gopsutil/disk"
	"github.com/sirupsen/logrus"
)

// calculateDirectorySize calculates the total size of files within a directory
func calculateDirectorySize(path string) (size int64, err error) {
	err = filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return
}

func getDeviceAndMountPoint(path string) (device, mountPoint string, err error) {
	mnt, err := filesystem.FindMount(path)
	if err != nil {
		return "", "", fmt.Errorf("unable to find mount for path %s: %v", path, err)
	}

	return mnt.Device, mnt.Path, nil
}

// displayDiskUsage logs the disk usage of each path.
func displayDiskUsage(log *logrus.Logger, paths []string) error {
	for _, path := range paths {
		usage, err := disk.Usage(path)
		if err != nil {
			return fmt.Errorf("disk usage of %s: %w", path, err)
		}

		fields := logrus.Fields{
			"Path":       path,
			"Filesystem": usage.Fstype,
			"Total (GB)": fmt.Sprintf("%.2f", float64(usage.Total)/1e9),
			"Used (GB)":  fmt.Sprintf("%.2f", float64(usage.Used)/1e9),
			"Free (GB)":  fmt.Sprintf("%.2f", float64(usage.Free)/1e9),
		}

		if device, mountPoint, err := getDeviceAndMountPoint(path); err == nil {
			fields["Device"] = device
			fields["Mount Point"] = mountPoint
		} else {
			log.WithField("path", path).Debug(err)
		}

		pathSize, err := calculateDirectorySize(path)
		if err != nil {
			return fmt.Errorf("size of %s: %w", path, err)
		}
		fields["Usage by DB"] = fmt.Sprintf("%.2f", float64(pathSize)/1e9)

		log.WithFields(fields).Info("Disk Usage")
	}
	return nil
}
