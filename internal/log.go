// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


package internal

import (
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Singleton log writer. Writes to stdout, and optionally to a rotating file.
// Does not add prefixes, or force newlines.

// Rotation limits for the optional log file
const (
	LogMaxSizeMB  = 50
	LogMaxBackups = 5
	LogMaxAgeDays = 28
)

var logMu   sync.Mutex
var logFile *lumberjack.Logger

// Enables logging to file, closing any previously opened log file
func LogAlsoToFile(fileName string) (err error) {
	logMu.Lock()
	defer logMu.Unlock()
	if logFile!=nil {
		if err=logFile.Close(); err!=nil { return err }
		logFile=nil
	}
	if fileName=="" { return nil }
	f, err:=os.OpenFile(fileName, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0666)
	if err!=nil { return err }
	f.Close()
	logFile=&lumberjack.Logger{
		Filename   : fileName,
		MaxSize    : LogMaxSizeMB,
		MaxBackups : LogMaxBackups,
		MaxAge     : LogMaxAgeDays,
	}
	return nil
}

// Returns a writer which logs to stdout and to the log file, if enabled
func LogWriter() io.Writer {
	return logWriter{}
}

type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	logMu.Lock()
	defer logMu.Unlock()
	n, err=os.Stdout.Write(p)
	if err!=nil || logFile==nil { return n, err }
	return logFile.Write(p)
}

func LogPrint(args ...interface{}) (n int, err error) {
	return fmt.Fprint(LogWriter(), args...)
}

func LogPrintln(args ...interface{}) (n int, err error) {
	return fmt.Fprintln(LogWriter(), args...)
}

func LogPrintf(format string, args ...interface{}) (n int, err error) {
	return fmt.Fprintf(LogWriter(), format, args...)
}

func LogFatal(args ...interface{}) {
	fmt.Fprintln(LogWriter(), args...)
	LogSync()
	os.Exit(1)
}

func LogFatalf(format string, args ...interface{}) {
	fmt.Fprintf(LogWriter(), format, args...)
	LogSync()
	os.Exit(1)
}

// Flushes and closes the log file, if any
func LogSync() {
	logMu.Lock()
	defer logMu.Unlock()
	if logFile!=nil {
		logFile.Close()
	}
}
