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


package ops

import (
	"fmt"
	"io"
	"runtime"

	"github.com/klauspost/cpuid"
	"github.com/pbnjay/memory"
)

// An execution context for the registration stages
type Context struct {
	Log              io.Writer
	MemoryMB         int          // memory.TotalMemory()/1024/1024
	WorkMemoryMB     int          // MemoryMB*7/10
	MaxThreads       int          `json:"maxThreads"`
}

// Creates a new context logging to the given writer. maxThreads<=0 selects the default
func NewContext(log io.Writer, maxThreads int) *Context {
	if log==nil { log=io.Discard }
	memoryMB:=int(memory.TotalMemory()/1024/1024)
	if maxThreads<=0 { maxThreads=DefaultThreads() }
	return &Context{
		Log          : log,
		MemoryMB     : memoryMB,
		WorkMemoryMB : memoryMB*7/10,
		MaxThreads   : maxThreads,
	}
}

// Returns the default degree of parallelism: the number of physical cores if known,
// else the number of logical cores available to the Go runtime
func DefaultThreads() int {
	n:=cpuid.CPU.PhysicalCores
	if n<=0 { n=cpuid.CPU.LogicalCores }
	if m:=runtime.GOMAXPROCS(0); n<=0 || n>m { n=m }
	if n<1 { n=1 }
	return n
}

// Returns the thread count of the context, at least 1. A nil context is sequential
func (c *Context) Threads() int {
	if c==nil || c.MaxThreads<1 { return 1 }
	return c.MaxThreads
}

// Returns the log writer of the context, discarding output for a nil context
func (c *Context) Writer() io.Writer {
	if c==nil || c.Log==nil { return io.Discard }
	return c.Log
}

// Warns on the log if the given working set estimate exceeds the memory budget.
// Returns true if within budget
func (c *Context) CheckMemory(what string, bytes int64) bool {
	if c==nil || c.WorkMemoryMB<=0 { return true }
	mb:=int(bytes/1024/1024)
	if mb<=c.WorkMemoryMB { return true }
	fmt.Fprintf(c.Log, "Warning: %s needs about %d MiB, exceeding the working memory budget of %d MiB\n", what, mb, c.WorkMemoryMB)
	return false
}


// A promise for a value. Returns the materialized value, or an error
type Promise[T any] func() (T, error)

// Materializes all promises with given concurrency limit. Results are returned
// in input order. Errors of all failed promises are joined in input order
func MaterializeAll[T any](ins []Promise[T], maxThreads int) (outs []T, err error) {
	if len(ins)==0 { return nil, nil }
	if maxThreads<1 { maxThreads=1 }
	outs=make([]T, len(ins))
	errs:=make([]error, len(ins))
	limiter:=make(chan bool, maxThreads)
	for i, in := range(ins) {
		limiter <- true
		go func(i int, theIn Promise[T]) {
			defer func() { <-limiter }()
			outs[i], errs[i]=theIn() // materialize the promise
		}(i, in)
	}
	for i:=0; i<cap(limiter); i++ {  // wait for goroutines to finish
		limiter <- true
	}
	for _, e:=range errs {  // collect errors
		if e==nil { continue }
		if err==nil {
			err=e
		} else {
			err=fmt.Errorf("%w; %w", err, e)
		}
	}
	return outs, err
}

// Calls fn(lo, hi) on consecutive chunks covering [0,n) with at most maxThreads
// goroutines at a time. Chunk boundaries depend only on n and the chunk size, so callers
// writing to disjoint per-index slots get identical results for any thread count
func ParallelFor(n, chunk, maxThreads int, fn func(lo, hi int)) {
	if n<=0 { return }
	if chunk<1 { chunk=1 }
	if maxThreads<=1 || n<=chunk {
		for lo:=0; lo<n; lo+=chunk {
			hi:=lo+chunk
			if hi>n { hi=n }
			fn(lo, hi)
		}
		return
	}
	limiter:=make(chan bool, maxThreads)
	for lo:=0; lo<n; lo+=chunk {
		hi:=lo+chunk
		if hi>n { hi=n }
		limiter <- true
		go func(lo, hi int) {
			defer func() { <-limiter }()
			fn(lo, hi)
		}(lo, hi)
	}
	for i:=0; i<cap(limiter); i++ {  // wait for goroutines to finish
		limiter <- true
	}
}
