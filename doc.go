// Package dirwatch watches a directory tree for file and directory name
// changes: creation, removal and renames.
//
// A Watcher keeps exactly one asynchronous read outstanding against the
// change-notification facility of the host OS. When the read completes the
// raw records are decoded from the notification buffer, handed to a Handler
// and the read is armed again into the same buffer. The facilities are:
//
//   - Windows: ReadDirectoryChangesExW on a handle associated with an I/O
//     completion port, falling back to ReadDirectoryChangesW;
//   - Linux: inotify, waited on with epoll;
//   - elsewhere, or when built with the fsnotify tag: fsnotify.
//
// Any failed or empty completion stops the watch for good. Nothing is
// retried, restarting is up to the caller.
//
// Setting the DIRWATCH_DEBUG environment variable enables debug logging to
// standard error.
package dirwatch
