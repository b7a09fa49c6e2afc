// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of framesync.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package log provides leveled logging with systemd sd-daemon priority
// prefixes (https://www.freedesktop.org/software/systemd/man/sd-daemon.html).
// Time/Date are not logged by default because journald adds them; enable
// them with SetLogDateTime for plain-file deployments.
package log

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"
)

var (
	DebugWriter io.Writer = os.Stderr
	InfoWriter  io.Writer = os.Stderr
	WarnWriter  io.Writer = os.Stderr
	ErrWriter   io.Writer = os.Stderr
	CritWriter  io.Writer = os.Stderr
)

const (
	DebugPrefix = "<7>[DEBUG]    "
	InfoPrefix  = "<6>[INFO]     "
	WarnPrefix  = "<4>[WARNING]  "
	ErrPrefix   = "<3>[ERROR]    "
	CritPrefix  = "<2>[CRITICAL] "
)

var logDateTime bool

// level bundles the two stdlib loggers (with and without timestamps) for one
// priority. The writer pointer is consulted on every call so SetLogLevel can
// silence a level after init.
type level struct {
	w        *io.Writer
	plain    *log.Logger
	withTime *log.Logger
}

func newLevel(w *io.Writer, prefix string, fileFlags int) level {
	return level{
		w:        w,
		plain:    log.New(*w, prefix, fileFlags),
		withTime: log.New(*w, prefix, fileFlags|log.LstdFlags),
	}
}

var (
	debugL = newLevel(&DebugWriter, DebugPrefix, 0)
	infoL  = newLevel(&InfoWriter, InfoPrefix, 0)
	warnL  = newLevel(&WarnWriter, WarnPrefix, log.Lshortfile)
	errL   = newLevel(&ErrWriter, ErrPrefix, log.Llongfile)
	critL  = newLevel(&CritWriter, CritPrefix, log.Llongfile)
)

// output logs one line, attributing the Lshortfile/Llongfile frame to the
// caller of the package-level Info/Warnf/... function two frames up.
func (l level) output(out string) {
	if *l.w == io.Discard {
		return
	}
	if logDateTime {
		l.withTime.Output(4, out)
	} else {
		l.plain.Output(4, out)
	}
}

func (l level) print(v ...interface{}) {
	l.output(fmt.Sprint(v...))
}

func (l level) printf(format string, v ...interface{}) {
	l.output(fmt.Sprintf(format, v...))
}

/* CONFIG */

// SetLogLevel silences every level below lvl. Valid levels, most to least
// verbose: debug, info, warn, err (or fatal), crit.
func SetLogLevel(lvl string) {
	switch lvl {
	case "crit":
		ErrWriter = io.Discard
		fallthrough
	case "err", "fatal":
		WarnWriter = io.Discard
		fallthrough
	case "warn":
		InfoWriter = io.Discard
		fallthrough
	case "info":
		DebugWriter = io.Discard
	case "debug":
		// Nothing to do...
	default:
		fmt.Printf("pkg/log: flag 'loglevel' has invalid value %#v\npkg/log: will use default loglevel 'debug'\n", lvl)
	}
}

// SetLogDateTime enables timestamps on every log line.
func SetLogDateTime(logdate bool) {
	logDateTime = logdate
}

/* PRINT */

func Print(v ...interface{}) {
	Info(v...)
}

func Debug(v ...interface{}) {
	debugL.print(v...)
}

func Info(v ...interface{}) {
	infoL.print(v...)
}

func Warn(v ...interface{}) {
	warnL.print(v...)
}

func Error(v ...interface{}) {
	errL.print(v...)
}

func Crit(v ...interface{}) {
	critL.print(v...)
}

// Writes an error log, then panics
func Panic(v ...interface{}) {
	Error(v...)
	panic("Panic triggered ...")
}

// Writes error log, stops application
func Fatal(v ...interface{}) {
	Error(v...)
	os.Exit(1)
}

/* PRINT FORMAT */

func Printf(format string, v ...interface{}) {
	Infof(format, v...)
}

func Debugf(format string, v ...interface{}) {
	debugL.printf(format, v...)
}

func Infof(format string, v ...interface{}) {
	infoL.printf(format, v...)
}

func Warnf(format string, v ...interface{}) {
	warnL.printf(format, v...)
}

func Errorf(format string, v ...interface{}) {
	errL.printf(format, v...)
}

func Critf(format string, v ...interface{}) {
	critL.printf(format, v...)
}

// Writes an error log, then panics
func Panicf(format string, v ...interface{}) {
	Errorf(format, v...)
	panic("Panic triggered ...")
}

// Writes error log, stops application
func Fatalf(format string, v ...interface{}) {
	Errorf(format, v...)
	os.Exit(1)
}

/* SPECIAL */

// Finfof writes an info-level line to w, used for HTTP access logging where
// the middleware supplies its own writer.
func Finfof(w io.Writer, format string, v ...interface{}) {
	if w == io.Discard {
		return
	}
	if logDateTime {
		fmt.Fprintf(w, time.Now().String()+InfoPrefix+format+"\n", v...)
	} else {
		fmt.Fprintf(w, InfoPrefix+format+"\n", v...)
	}
}
