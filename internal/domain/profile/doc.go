// Package profile materializes isolated Firefox profile directories.
//
// Each instance owns one profile directory under the data volume. The
// configurator manages exactly one file inside it, user.js, which carries
// the proxy preference subset; everything else in the profile belongs to
// Firefox. Rewrites are idempotent, so applying the same proxy twice
// produces byte-identical output.
package profile
