//go:build fsnotify || !(linux || windows)

package dirwatch

// Platforms without a native facility, and builds tagged with fsnotify, watch
// through fsnotify.
func newNative() system { return newFsnotify() }
