package paths

import "path/filepath"

// DefaultDataDir is the container volume mount used when DATA_DIR is unset.
const DefaultDataDir = "/data"

// Layout resolves the on-disk structure under the writable data directory.
// The same layout is assumed by the container's supervisor scripts, so any
// change here must be synchronized with the image build.
type Layout struct {
	DataDir string
}

// New returns a layout rooted at dataDir, falling back to DefaultDataDir.
func New(dataDir string) Layout {
	if dataDir == "" {
		dataDir = DefaultDataDir
	}
	return Layout{DataDir: dataDir}
}

// InstancesFile returns the path of the persisted instance collection.
func (l Layout) InstancesFile() string {
	return filepath.Join(l.DataDir, "instances.json")
}

// ProfilesDir returns the directory holding all instance profiles.
func (l Layout) ProfilesDir() string {
	return filepath.Join(l.DataDir, "profiles")
}

// ProfileDir returns the profile directory for one instance. Derived from
// the instance id, which is never recycled.
func (l Layout) ProfileDir(instanceID string) string {
	return filepath.Join(l.ProfilesDir(), instanceID)
}

// LogsDir returns the directory for browser and admin logs.
func (l Layout) LogsDir() string {
	return filepath.Join(l.DataDir, "logs")
}

// LauncherLog returns the shared stdout/stderr sink for browser processes.
func (l Layout) LauncherLog() string {
	return filepath.Join(l.LogsDir(), "launcher.log")
}
