// Package paths provides standardized filesystem paths for consistent
// access across the backend.
//
// All mutable state lives under a single writable data directory
// (DATA_DIR, /data by default inside the container):
//
//	/data/instances.json   persisted instance collection
//	/data/profiles/<id>    isolated Firefox profile per instance
//	/data/logs             browser launcher and admin logs
package paths
