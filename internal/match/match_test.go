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


package match

import (
	"testing"

	"github.com/mlnoga/coreg/internal/feature"
	"github.com/valyala/fastrand"
)

func randomDescriptors(n int, seed uint32) []feature.Descriptor {
	rng:=fastrand.RNG{}
	rng.Seed(seed)
	res:=make([]feature.Descriptor, n)
	for i:=range res {
		for w:=range res[i] {
			res[i][w]=uint64(rng.Uint32())<<32 | uint64(rng.Uint32())
		}
	}
	return res
}

// Flips the given number of low bits of a copy of the descriptor
func flip(d feature.Descriptor, n int) feature.Descriptor {
	for i:=0; i<n; i++ {
		d[i>>6]^=1<<uint(i&63)
	}
	return d
}

func TestHamming(t *testing.T) {
	var a, b feature.Descriptor
	if d:=Hamming(&a, &b); d!=0 {
		t.Errorf("d=%d; want 0", d)
	}
	b[0], b[3]=0xFF, 1<<63
	if d:=Hamming(&a, &b); d!=9 {
		t.Errorf("d=%d; want 9", d)
	}
	b=flip(a, feature.DescriptorBits)
	if d:=Hamming(&a, &b); d!=feature.DescriptorBits {
		t.Errorf("d=%d; want %d", d, feature.DescriptorBits)
	}
}

func TestMatchRecoversPermutation(t *testing.T) {
	a:=randomDescriptors(100, 1)
	// b holds noisy copies of a in reverse order
	b:=make([]feature.Descriptor, len(a))
	for i:=range a {
		b[len(a)-1-i]=flip(a[i], i%5)
	}
	m:=&Matcher{CrossCheck: true, Threads: 4}
	res:=m.Match(a, b)
	if len(res)!=len(a) {
		t.Fatalf("len=%d; want %d", len(res), len(a))
	}
	for i, r:=range res {
		if r.QueryIdx!=i || r.TrainIdx!=len(a)-1-i || r.Distance!=i%5 {
			t.Errorf("match %d=%+v; want %d->%d at %d", i, r, i, len(a)-1-i, i%5)
		}
	}
}

func TestMatchCrossCheckSymmetry(t *testing.T) {
	a:=randomDescriptors(80, 2)
	b:=randomDescriptors(60, 3)
	m:=NewMatcherDefault()
	ab:=m.Match(a, b)
	ba:=m.Match(b, a)
	if len(ab)!=len(ba) {
		t.Fatalf("len(ab)=%d len(ba)=%d", len(ab), len(ba))
	}
	pairs:=map[[2]int]int{}
	for _, r:=range ab { pairs[[2]int{r.QueryIdx, r.TrainIdx}]=r.Distance }
	for _, r:=range ba {
		d, ok:=pairs[[2]int{r.TrainIdx, r.QueryIdx}]
		if !ok || d!=r.Distance {
			t.Errorf("reverse match %+v has no forward counterpart", r)
		}
	}
}

func TestMatchWithoutCrossCheck(t *testing.T) {
	a:=randomDescriptors(30, 4)
	b:=randomDescriptors(5, 5)
	res:=(&Matcher{}).Match(a, b)
	if len(res)!=len(a) {
		t.Errorf("len=%d; want one match per query %d", len(res), len(a))
	}
}

func TestMatchTiesLowestIndex(t *testing.T) {
	a:=randomDescriptors(1, 6)
	b:=[]feature.Descriptor{flip(a[0], 3), a[0], a[0]}
	res:=NewMatcherDefault().Match(a, b)
	if len(res)!=1 || res[0].TrainIdx!=1 || res[0].Distance!=0 {
		t.Errorf("res=%+v; want single match to index 1", res)
	}
}

func TestMatchMaxDistance(t *testing.T) {
	a:=randomDescriptors(10, 7)
	b:=make([]feature.Descriptor, len(a))
	for i:=range a { b[i]=flip(a[i], 2*i) }
	res:=(&Matcher{CrossCheck: true, MaxDistance: 10}).Match(a, b)
	for _, r:=range res {
		if r.Distance>=10 { t.Errorf("match %+v exceeds max distance", r) }
	}
	if len(res)!=5 { t.Errorf("len=%d; want 5", len(res)) }
}

func TestMatchEmpty(t *testing.T) {
	a:=randomDescriptors(3, 8)
	m:=NewMatcherDefault()
	if res:=m.Match(nil, a); len(res)!=0 { t.Errorf("len=%d; want 0", len(res)) }
	if res:=m.Match(a, nil); len(res)!=0 { t.Errorf("len=%d; want 0", len(res)) }
}

func TestMatchThreadsDeterministic(t *testing.T) {
	a:=randomDescriptors(300, 9)
	b:=randomDescriptors(250, 10)
	r1:=(&Matcher{CrossCheck: true, Threads: 1}).Match(a, b)
	r8:=(&Matcher{CrossCheck: true, Threads: 8}).Match(a, b)
	if len(r1)!=len(r8) { t.Fatalf("len %d vs %d", len(r1), len(r8)) }
	for i:=range r1 {
		if r1[i]!=r8[i] { t.Fatalf("match %d: %+v vs %+v", i, r1[i], r8[i]) }
	}
}

func distances(ds ...int) []Match {
	res:=make([]Match, len(ds))
	for i, d:=range ds { res[i]=Match{QueryIdx: i, TrainIdx: i, Distance: d} }
	return res
}

func TestFilterTopFraction(t *testing.T) {
	in:=distances(5, 1, 3, 1, 9, 3, 0, 7, 2, 4)
	tcs:=[]struct{
		rate float64
		want []int   // query indices
	}{
		{1.0,  []int{6, 1, 3, 8, 2, 5, 9, 0, 7, 4}},
		{0.35, []int{6, 1, 3}},
		{0.5,  []int{6, 1, 3, 8, 2}},
		{0.09, []int{}},
		{0.1,  []int{6}},
	}
	for _, tc:=range tcs {
		got, err:=FilterTopFraction(in, tc.rate)
		if err!=nil { t.Fatalf("rate=%g err=%s", tc.rate, err) }
		if len(got)!=len(tc.want) {
			t.Errorf("rate=%g len=%d; want %d", tc.rate, len(got), len(tc.want))
			continue
		}
		for i, w:=range tc.want {
			if got[i].QueryIdx!=w { t.Errorf("rate=%g got[%d]=%d; want %d", tc.rate, i, got[i].QueryIdx, w) }
		}
	}
	if in[0].Distance!=5 || in[6].Distance!=0 { t.Errorf("input was modified") }
}

func TestFilterMonotone(t *testing.T) {
	rng:=fastrand.RNG{}
	in:=make([]Match, 137)
	for i:=range in { in[i]=Match{QueryIdx: i, Distance: int(rng.Uint32n(40))} }
	prev:=-1
	var prevRes []Match
	for r:=1; r<=100; r++ {
		res, err:=FilterTopFraction(in, float64(r)/100)
		if err!=nil { t.Fatal(err) }
		if len(res)<prev { t.Fatalf("rate %d%% kept %d < %d", r, len(res), prev) }
		for i:=range prevRes {
			if res[i]!=prevRes[i] { t.Fatalf("rate %d%% result is no prefix extension at %d", r, i) }
		}
		prev, prevRes=len(res), res
	}
}

func TestFilterInvalidRate(t *testing.T) {
	for _, rate:=range []float64{0, -0.1, 1.01} {
		if _, err:=FilterTopFraction(distances(1, 2), rate); err==nil {
			t.Errorf("rate=%g should fail", rate)
		}
	}
}

func TestFilterEmpty(t *testing.T) {
	res, err:=FilterTopFraction(nil, 0.15)
	if err!=nil || len(res)!=0 { t.Errorf("res=%v err=%v; want empty", res, err) }
}
