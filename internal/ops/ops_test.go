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
	"bytes"
	"errors"
	"os"
	"strings"
	"sync/atomic"
	"testing"
)

func TestMaterializeAllOrder(t *testing.T) {
	ins:=make([]Promise[int], 50)
	for i:=range ins {
		i:=i
		ins[i]=func() (int, error) { return i*i, nil }
	}
	for _, threads:=range []int{0, 1, 3, 16} {
		outs, err:=MaterializeAll(ins, threads)
		if err!=nil { t.Fatalf("threads=%d: %s", threads, err) }
		for i, o:=range outs {
			if o!=i*i { t.Fatalf("threads=%d: outs[%d]=%d; want %d", threads, i, o, i*i) }
		}
	}
	if outs, err:=MaterializeAll[int](nil, 4); outs!=nil || err!=nil {
		t.Errorf("empty input: %v %v", outs, err)
	}
}

func TestMaterializeAllErrors(t *testing.T) {
	errA, errB:=errors.New("a failed"), os.ErrNotExist
	ins:=[]Promise[string]{
		func() (string, error) { return "", errA },
		func() (string, error) { return "ok", nil },
		func() (string, error) { return "", errB },
	}
	outs, err:=MaterializeAll(ins, 2)
	if outs[1]!="ok" { t.Errorf("successful promise lost: %v", outs) }
	if !errors.Is(err, errA) || !errors.Is(err, errB) { t.Errorf("err=%v; want both causes", err) }
	if !strings.HasPrefix(err.Error(), "a failed; ") { t.Errorf("errors not in input order: %s", err) }
}

func TestMaterializeAllLimit(t *testing.T) {
	var running, peak int32
	ins:=make([]Promise[bool], 40)
	for i:=range ins {
		ins[i]=func() (bool, error) {
			n:=atomic.AddInt32(&running, 1)
			for {
				p:=atomic.LoadInt32(&peak)
				if n<=p || atomic.CompareAndSwapInt32(&peak, p, n) { break }
			}
			atomic.AddInt32(&running, -1)
			return true, nil
		}
	}
	if _, err:=MaterializeAll(ins, 3); err!=nil { t.Fatal(err) }
	if peak>3 { t.Errorf("peak concurrency %d; want at most 3", peak) }
}

func TestParallelFor(t *testing.T) {
	for _, tc:=range []struct{ n, chunk, threads int }{
		{0, 4, 4}, {1, 4, 4}, {10, 3, 1}, {10, 3, 8}, {1000, 64, 5}, {7, 0, 2},
	} {
		hits:=make([]int32, tc.n)
		ParallelFor(tc.n, tc.chunk, tc.threads, func(lo, hi int) {
			for i:=lo; i<hi; i++ { atomic.AddInt32(&hits[i], 1) }
		})
		for i, h:=range hits {
			if h!=1 { t.Fatalf("%+v: index %d visited %d times", tc, i, h) }
		}
	}
}

func TestContext(t *testing.T) {
	var nilCtx *Context
	if nilCtx.Threads()!=1 || nilCtx.Writer()==nil || !nilCtx.CheckMemory("x", 1<<40) {
		t.Errorf("nil context not sequential and silent")
	}
	var buf bytes.Buffer
	c:=NewContext(&buf, 0)
	if c.Threads()<1 || c.Threads()!=DefaultThreads() { t.Errorf("threads=%d", c.Threads()) }
	if c.MemoryMB>0 {
		if !c.CheckMemory("small", 1<<20) { t.Errorf("1 MiB over budget") }
		if c.CheckMemory("huge", int64(c.MemoryMB)<<21) || !strings.Contains(buf.String(), "huge") {
			t.Errorf("oversized working set not reported: %q", buf.String())
		}
	}
	if NewContext(nil, 3).Threads()!=3 { t.Errorf("explicit thread count ignored") }
}
