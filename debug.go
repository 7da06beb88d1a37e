package dirwatch

import (
	"log"
	"os"
	"runtime"
	"strings"
)

var dbgprint func(...interface{})

var dbgprintf func(string, ...interface{})

var dbgcallstack func(max int) []string

func init() {
	if _, ok := os.LookupEnv("DIRWATCH_DEBUG"); ok {
		l := log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lmicroseconds)
		dbgprint = func(v ...interface{}) {
			v = append([]interface{}{"[D] "}, v...)
			l.Println(v...)
		}
		dbgprintf = func(format string, v ...interface{}) {
			l.Printf("[D] "+format, v...)
		}
		dbgcallstack = stacktrace
		return
	}
	dbgprint = func(v ...interface{}) {}
	dbgprintf = func(format string, v ...interface{}) {}
	dbgcallstack = func(max int) []string { return nil }
}

func stacktrace(max int) []string {
	pc, stack := make([]uintptr, max), make([]string, 0, max)
	n := runtime.Callers(2, pc)
	for _, pc := range pc[:n] {
		if f := runtime.FuncForPC(pc); f != nil {
			fname := f.Name()
			idx := strings.LastIndex(fname, "/")
			if idx != -1 {
				stack = append(stack, fname[idx+1:])
			} else {
				stack = append(stack, fname)
			}
		}
	}
	return stack
}
