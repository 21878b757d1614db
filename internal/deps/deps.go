package deps

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"

	"chorusd/internal/config"
)

// Requirement defines an external dependency chorusd relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// DirectoryResult reports whether a directory is usable.
type DirectoryResult struct {
	Name   string
	Passed bool
	Detail string
}

// CheckDirectoryAccess verifies that the directory exists and is
// readable/writable.
func CheckDirectoryAccess(name, path string) DirectoryResult {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DirectoryResult{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return DirectoryResult{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return DirectoryResult{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return DirectoryResult{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return DirectoryResult{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// Requirements lists the external binaries the service needs. Both the
// daemon startup path and the CLI status command consume this so the list
// stays in one place.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.Tools.FFmpeg,
			Description: "Required for decoding and loudness measurement",
		},
		{
			Name:        "FFprobe",
			Command:     cfg.Tools.FFprobe,
			Description: "Required for container inspection",
		},
		{
			Name:        "chorus-detect",
			Command:     cfg.Tools.Detector,
			Description: "Required for chorus detection",
		},
	}
}

// CheckDirectories verifies the three storage scope directories.
func CheckDirectories(cfg *config.Config) []DirectoryResult {
	return []DirectoryResult{
		CheckDirectoryAccess("Intake directory", cfg.IntakeDir()),
		CheckDirectoryAccess("Output directory", cfg.OutputDir()),
		CheckDirectoryAccess("Transient directory", cfg.TransientDir()),
	}
}
