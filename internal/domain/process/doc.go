// Package process is the supervisor adapter for per-instance browser
// processes.
//
// It owns the *exec.Cmd handles for browsers it spawned and reaps them in
// the background, reporting unexpected exits through a callback. Browsers
// started by a previous admin run are handled through pgrep/pkill keyed
// by the instance's unique profile path, so an admin restart never loses
// track of, or the ability to stop, a running browser.
package process
