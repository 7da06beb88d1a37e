//go:build windows && !fsnotify

package dirwatch

func newNative() system { return newReaddcw() }
