// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

// Command dirwatch prints changes to file and directory names under a
// directory until it is interrupted.
//
// Usage
//
//	usage: dirwatch <path>
//
// Each change is printed on its own line as the action followed by the name
// relative to the watched directory:
//
//	~ $ dirwatch C:\watched
//	Added a.txt
//	Renamed from a.txt
//	Renamed to b.txt
//
// The exit status is 0 when dirwatch was stopped by an interrupt and 1 when
// no path was given, the directory could not be watched or the watch failed.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/JekaMas/dirwatch"
	"github.com/alecthomas/kong"
)

const description = `Prints changes to file and directory names under the given directory,
one "<action> <name>" line per change, until interrupted.`

type cli struct {
	Path string `arg:"" help:"Directory to watch, the subtree included."`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		return 1
	}
	var c cli
	exit := -1
	parser, err := kong.New(&c,
		kong.Name("dirwatch"),
		kong.Description(description),
		kong.Writers(stdout, stderr),
		kong.Exit(func(code int) { exit = code }),
	)
	if err != nil {
		fmt.Fprintln(stderr, "dirwatch:", err)
		return 1
	}
	_, err = parser.Parse(args)
	if exit >= 0 {
		// --help was printed.
		return exit
	}
	if err != nil {
		fmt.Fprintln(stderr, "dirwatch:", err)
		return 1
	}
	if err := dirwatch.Watch(ctx, c.Path, dirwatch.NewPrinter(stdout), nil); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}
