// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package dirwatch

import (
	"strconv"
	"time"
)

// Action represents the kind of filesystem change a Record describes.
//
// The values mirror the FILE_ACTION_* constants reported by
// ReadDirectoryChangesW, other facilities translate their native masks into
// them.
type Action uint32

// Actions reported by every facility.
const (
	Added       Action = 1 + iota // FILE_ACTION_ADDED
	Removed                       // FILE_ACTION_REMOVED
	Modified                      // FILE_ACTION_MODIFIED
	RenamedFrom                   // FILE_ACTION_RENAMED_OLD_NAME
	RenamedTo                     // FILE_ACTION_RENAMED_NEW_NAME
)

var astr = map[Action]string{
	Added:       "Added",
	Removed:     "Removed",
	Modified:    "Modified",
	RenamedFrom: "Renamed from",
	RenamedTo:   "Renamed to",
}

// String implements fmt.Stringer interface.
func (a Action) String() string {
	if s, ok := astr[a]; ok {
		return s
	}
	return "Action(" + strconv.FormatUint(uint64(a), 10) + ")"
}

// Record describes a single change decoded from a notification batch.
//
// Name is relative to the watched directory and uses the separator of the
// facility which reported it. Ext is non-nil only for records decoded from
// the extended layout.
type Record struct {
	Action Action
	Name   string
	Ext    *Extended
}

// String implements fmt.Stringer interface.
func (r Record) String() string {
	return r.Action.String() + " " + r.Name
}

// Extended carries the metadata FILE_NOTIFY_EXTENDED_INFORMATION reports
// next to each name.
type Extended struct {
	CreationTime  time.Time
	ModTime       time.Time
	ChangeTime    time.Time
	AccessTime    time.Time
	AllocatedSize int64
	Size          int64
	Attributes    uint32
	ReparseTag    uint32
	FileID        int64
	ParentFileID  int64
}

// IsDir reports whether FILE_ATTRIBUTE_DIRECTORY is set.
func (e *Extended) IsDir() bool {
	return e != nil && e.Attributes&fileAttributeDirectory != 0
}

const fileAttributeDirectory = 0x10

// filetimeEpoch is the number of 100ns intervals between 1601-01-01 and the
// Unix epoch.
const filetimeEpoch = 116444736000000000

func filetime(ft int64) time.Time {
	if ft == 0 {
		return time.Time{}
	}
	return time.Unix(0, (ft-filetimeEpoch)*100)
}

func tofiletime(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()/100 + filetimeEpoch
}
