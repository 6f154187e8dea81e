package collector

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/cptspacemanspiff/eco-monitor/internal/telemetry"
)

// ProcessorCount returns the number of logical CPUs usable by this process.
func ProcessorCount() int {
	return runtime.NumCPU()
}

// CollectMemory reads MemTotal and MemAvailable from /proc/meminfo.
func CollectMemory() (*MemInfo, error) {
	f, err := os.Open(filepath.Join(procRoot, "meminfo"))
	if err != nil {
		return nil, fmt.Errorf("open meminfo: %w", err)
	}
	defer f.Close()

	info := &MemInfo{}
	var haveTotal bool
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			info.TotalBytes = kb * 1024
			haveTotal = true
		case "MemAvailable:":
			info.AvailableBytes = kb * 1024
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read meminfo: %w", err)
	}
	if !haveTotal {
		return nil, fmt.Errorf("meminfo has no MemTotal: %w", telemetry.ErrUnavailable)
	}
	return info, nil
}

// CollectStorage returns the capacity of the filesystem holding path.
func CollectStorage(path string) (*StorageInfo, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		if err == unix.EACCES || err == unix.EPERM {
			return nil, fmt.Errorf("statfs %s: %w: %w", path, telemetry.ErrDenied, err)
		}
		return nil, fmt.Errorf("statfs %s: %w: %w", path, telemetry.ErrUnavailable, err)
	}
	bsize := int64(st.Bsize)
	return &StorageInfo{
		Path:       path,
		TotalBytes: int64(st.Blocks) * bsize,
		FreeBytes:  int64(st.Bavail) * bsize,
	}, nil
}

// CollectPlatform describes the running kernel and distribution.
func CollectPlatform() (*PlatformInfo, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return nil, fmt.Errorf("uname: %w", err)
	}
	return &PlatformInfo{
		Release:  unix.ByteSliceToString(uts.Release[:]),
		NodeName: unix.ByteSliceToString(uts.Nodename[:]),
		Machine:  unix.ByteSliceToString(uts.Machine[:]),
		OS:       osPrettyName(),
	}, nil
}

// osPrettyName returns PRETTY_NAME from os-release, or "Linux".
func osPrettyName() string {
	for _, path := range []string{filepath.Join(etcRoot, "os-release"), "/usr/lib/os-release"} {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		for _, line := range strings.Split(string(data), "\n") {
			if v, ok := strings.CutPrefix(line, "PRETTY_NAME="); ok {
				return strings.Trim(v, `"'`)
			}
		}
	}
	return "Linux"
}

// KernelVersion parses "major.minor" from a kernel release string such as
// "6.8.0-45-generic".
func KernelVersion(release string) (major, minor int, err error) {
	majStr, rest, ok := strings.Cut(release, ".")
	if !ok {
		return 0, 0, fmt.Errorf("malformed kernel release %q", release)
	}
	major, err = strconv.Atoi(majStr)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed kernel release %q: %w", release, err)
	}
	end := strings.IndexFunc(rest, func(r rune) bool { return r < '0' || r > '9' })
	if end == 0 {
		return 0, 0, fmt.Errorf("malformed kernel release %q", release)
	}
	if end < 0 {
		end = len(rest)
	}
	minor, _ = strconv.Atoi(rest[:end])
	return major, minor, nil
}

// ReadPlatformProfile returns the ACPI platform profile ("low-power",
// "balanced", "performance"...).
func ReadPlatformProfile() (string, error) {
	path := filepath.Join(sysfsRoot, "firmware/acpi/platform_profile")
	profile, err := readTrimmed(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("platform_profile: %w", telemetry.ErrUnsupported)
		}
		if os.IsPermission(err) {
			return "", fmt.Errorf("platform_profile: %w", telemetry.ErrDenied)
		}
		return "", fmt.Errorf("read platform_profile: %w", err)
	}
	return profile, nil
}

// HasPlatformProfile reports whether the firmware exposes a platform profile.
func HasPlatformProfile() bool {
	_, err := os.Stat(filepath.Join(sysfsRoot, "firmware/acpi/platform_profile"))
	return err == nil
}

// IsLowPowerProfile reports whether an ACPI platform profile is a power saving one.
func IsLowPowerProfile(profile string) bool {
	return profile == "low-power" || profile == "quiet" || profile == "cool"
}
