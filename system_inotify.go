//go:build linux && !fsnotify

package dirwatch

func newNative() system { return newInotify() }
