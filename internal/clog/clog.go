// Package clog is a minimal leveled logger in the shape of rclone's
// fs.Debugf/fs.Infof/fs.Errorf: free functions that take a loggable
// "subject" plus a format string, rather than a method on a logger value
// threaded through every call site.
package clog

import (
	"fmt"
	"log"
	"os"
)

// Level controls which severities are emitted.
type Level int

// Severities, lowest to highest.
const (
	Debug Level = iota
	Info
	Notice
	Error
)

var current = Info

// SetLevel changes the minimum severity that will be logged.
func SetLevel(l Level) { current = l }

var std = log.New(os.Stderr, "", log.LstdFlags)

// Subject is anything identifiable in a log line; *vaultfs.Vault, an
// *openfile.File and a plain string all satisfy it via fmt.Stringer or
// are formatted with %v.
type Subject any

func logf(l Level, prefix string, subject Subject, format string, args ...any) {
	if l < current {
		return
	}
	msg := fmt.Sprintf(format, args...)
	std.Printf("%s: %v: %s", prefix, subject, msg)
}

// Debugf logs at Debug severity.
func Debugf(subject Subject, format string, args ...any) { logf(Debug, "DEBUG", subject, format, args...) }

// Infof logs at Info severity.
func Infof(subject Subject, format string, args ...any) { logf(Info, "INFO", subject, format, args...) }

// Noticef logs at Notice severity — used for warnings that are not errors,
// e.g. spec §3 invariant 3's negative-size clamp.
func Noticef(subject Subject, format string, args ...any) {
	logf(Notice, "NOTICE", subject, format, args...)
}

// Errorf logs at Error severity.
func Errorf(subject Subject, format string, args ...any) { logf(Error, "ERROR", subject, format, args...) }
