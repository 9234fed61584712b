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


package coreg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/valyala/fastrand"

	"github.com/mlnoga/coreg/internal/homography"
	"github.com/mlnoga/coreg/internal/ops"
	"github.com/mlnoga/coreg/internal/raster"
)

// Returns a synthetic gray image with n random overlapping rectangles on a dark background
func rectangles(width, height, n int, seed uint32) *raster.Image {
	rng:=fastrand.RNG{}
	rng.Seed(seed)
	img:=raster.NewImage(width, height, 1, nil)
	for i:=range img.Data { img.Data[i]=0.1 }
	for i:=0; i<n; i++ {
		x0, y0:=int(rng.Uint32n(uint32(width-20))), int(rng.Uint32n(uint32(height-20)))
		w, h:=10+int(rng.Uint32n(40)), 10+int(rng.Uint32n(40))
		v:=0.3+float32(rng.Uint32n(70))/100
		for y:=y0; y<y0+h && y<height; y++ {
			for x:=x0; x<x0+w && x<width; x++ {
				img.Data[y*width+x]=v
			}
		}
	}
	return img
}

// Returns a copy of img shifted right by dx and down by dy, filling with the background level
func shift(img *raster.Image, dx, dy int) *raster.Image {
	res:=raster.NewImage(img.Width, img.Height, img.Channels, nil)
	for i:=range res.Data { res.Data[i]=0.1 }
	for y:=0; y<img.Height; y++ {
		sy:=y-dy
		if sy<0 || sy>=img.Height { continue }
		for x:=0; x<img.Width; x++ {
			sx:=x-dx
			if sx<0 || sx>=img.Width { continue }
			res.Data[y*img.Width+x]=img.Data[sy*img.Width+sx]
		}
	}
	return res
}

func testContext(threads int) *ops.Context {
	return ops.NewContext(io.Discard, threads)
}

func TestRegisterIdentical(t *testing.T) {
	img:=rectangles(256, 256, 40, 7)
	res, err:=Register(context.Background(), testContext(4), img, img, nil)
	if err!=nil { t.Fatalf("Register: %s", err) }
	if d:=res.H.MaxDiff(homography.Identity()); d>1e-3 {
		t.Errorf("H=%v; want identity", res.H)
	}
	if res.NumInliers<4 || len(res.Inliers)!=len(res.Matches) {
		t.Errorf("%d inliers over %d matches", res.NumInliers, len(res.Matches))
	}
	if res.Aligned.Width!=256 || res.Aligned.Height!=256 {
		t.Fatalf("aligned size %dx%d", res.Aligned.Width, res.Aligned.Height)
	}
	// interior pixels reproduce the input up to interpolation error
	for y:=2; y<254; y++ {
		for x:=2; x<254; x++ {
			i:=y*256+x
			if d:=math.Abs(float64(res.Aligned.Data[i]-img.Data[i])); d>1e-2 {
				t.Fatalf("aligned(%d,%d)=%g; want %g", x, y, res.Aligned.Data[i], img.Data[i])
			}
		}
	}
	for i:=1; i<len(res.Matches); i++ {
		if res.Matches[i].Distance<res.Matches[i-1].Distance {
			t.Fatalf("matches not ordered by distance at %d", i)
		}
	}
}

func TestRegisterShift(t *testing.T) {
	ref:=rectangles(256, 256, 40, 11)
	target:=shift(ref, 5, 3)
	for _, dir:=range []Direction{RefToTarget, TargetToRef} {
		cfg:=NewConfigDefault()
		cfg.Direction=dir
		res, err:=Register(context.Background(), testContext(4), ref, target, cfg)
		if err!=nil { t.Fatalf("%v: %s", dir, err) }
		dx, dy:=5.0, 3.0
		if dir==TargetToRef { dx, dy=-5, -3 }
		p, ok:=res.H.Apply(homography.Point{X: 128, Y: 128})
		if !ok || math.Abs(p.X-128-dx)>1 || math.Abs(p.Y-128-dy)>1 {
			t.Errorf("%v: H(128,128)=%v; want (%g,%g)", dir, p, 128+dx, 128+dy)
		}
	}
}

// Returns the homography rotating by angle degrees and scaling by scale around the center of a width x height image
func rotateScale(width, height int, angle, scale float64) homography.H {
	cx, cy:=float64(width)/2, float64(height)/2
	sin, cos:=math.Sincos(angle*math.Pi/180)
	sin, cos = sin*scale, cos*scale
	return homography.H{
		cos, -sin, cx-cos*cx+sin*cy,
		sin,  cos, cy-sin*cx-cos*cy,
		0,    0,   1,
	}
}

func TestRegisterRotatedScaled(t *testing.T) {
	ref:=rectangles(256, 256, 40, 13)
	tcs:=[]struct {
		angle, scale float64
	}{
		{30, 1},
		{90, 1},
		{0, 1.3},
		{0, 0.8},
		{10, 1.1},
	}
	probes:=[]homography.Point{{X: 128, Y: 128}, {X: 96, Y: 150}, {X: 160, Y: 100}}
	for _, tc:=range tcs {
		want:=rotateScale(256, 256, tc.angle, tc.scale)
		inv, err:=want.Invert()
		if err!=nil { t.Fatal(err) }
		target:=ref.Warp(inv, 256, 256, raster.WarpOptions{Background: 0.1})

		res, err:=Register(context.Background(), testContext(4), ref, target, nil)
		if err!=nil { t.Errorf("angle %g scale %g: %s", tc.angle, tc.scale, err); continue }
		for _, p:=range probes {
			got, ok1:=res.H.Apply(p)
			exp, ok2:=want.Apply(p)
			if !ok1 || !ok2 || math.Hypot(got.X-exp.X, got.Y-exp.Y)>1 {
				t.Errorf("angle %g scale %g: H(%v)=%v; want %v", tc.angle, tc.scale, p, got, exp)
			}
		}
	}
}

func TestRegisterDenoise(t *testing.T) {
	ref:=rectangles(200, 200, 30, 17)
	target:=shift(ref, 3, 6)
	// sprinkle hot pixels over the target
	rng:=fastrand.RNG{}
	rng.Seed(99)
	for i:=0; i<200; i++ { target.Data[rng.Uint32n(uint32(len(target.Data)))]=1 }
	cfg:=NewConfigDefault()
	cfg.Denoise=true
	res, err:=Register(context.Background(), testContext(2), ref, target, cfg)
	if err!=nil { t.Fatal(err) }
	p, ok:=res.H.Apply(homography.Point{X: 100, Y: 100})
	if !ok || math.Abs(p.X-103)>1 || math.Abs(p.Y-106)>1 {
		t.Errorf("H(100,100)=%v; want (103,106)", p)
	}
}

func TestRegisterDeterministic(t *testing.T) {
	ref:=rectangles(200, 160, 30, 3)
	target:=shift(ref, 2, 4)
	r1, err:=Register(context.Background(), testContext(1), ref, target, nil)
	if err!=nil { t.Fatal(err) }
	r8, err:=Register(context.Background(), testContext(8), ref, target, nil)
	if err!=nil { t.Fatal(err) }
	if r1.H!=r8.H || r1.NumInliers!=r8.NumInliers || len(r1.Matches)!=len(r8.Matches) {
		t.Errorf("results differ across thread counts: %v vs %v", r1.H, r8.H)
	}
	for i:=range r1.Aligned.Data {
		if r1.Aligned.Data[i]!=r8.Aligned.Data[i] {
			t.Fatalf("aligned pixel %d differs", i)
		}
	}
}

func TestRegisterEmpty(t *testing.T) {
	black:=raster.NewImage(128, 128, 1, nil)
	tex:=rectangles(128, 128, 20, 5)
	_, err:=Register(context.Background(), testContext(2), black, tex, nil)
	if !errors.Is(err, ErrEmptyFeatureSet) { t.Errorf("err=%v; want ErrEmptyFeatureSet", err) }
	_, err=Register(context.Background(), testContext(2), tex, black, nil)
	if ErrorKind(err)!=KindEmptyFeatureSet { t.Errorf("kind=%v; want emptyFeatureSet", ErrorKind(err)) }
	_, err=Register(context.Background(), testContext(2), black, black, nil)
	if ErrorKind(err)!=KindEmptyFeatureSet { t.Errorf("both black: kind=%v; want emptyFeatureSet", ErrorKind(err)) }
}

func TestRegisterCancelled(t *testing.T) {
	img:=rectangles(128, 128, 20, 5)
	ctx, cancel:=context.WithCancel(context.Background())
	cancel()
	_, err:=Register(ctx, testContext(2), img, img, nil)
	if !errors.Is(err, context.Canceled) { t.Errorf("err=%v; want context.Canceled", err) }
}

func TestRegisterInvalidConfig(t *testing.T) {
	img:=rectangles(64, 64, 5, 5)
	cfg:=NewConfigDefault()
	cfg.MatchRate=0
	if _, err:=Register(context.Background(), testContext(1), img, img, cfg); err==nil {
		t.Errorf("zero match rate accepted")
	}
}

func TestErrorKind(t *testing.T) {
	tcs:=[]struct {
		err  error
		kind Kind
	}{
		{nil, KindNone},
		{&raster.LoadError{FileName: "a.png", Err: os.ErrNotExist}, KindLoad},
		{fmt.Errorf("wrapped: %w", &raster.WriteError{FileName: "b.png", Err: os.ErrPermission}), KindWrite},
		{fmt.Errorf("%w: none", ErrEmptyFeatureSet), KindEmptyFeatureSet},
		{fmt.Errorf("%w: got 3", homography.ErrInsufficientCorrespondences), KindInsufficientCorrespondences},
		{homography.ErrDegenerateModel, KindDegenerateModel},
		{errors.New("boom"), KindOther},
	}
	for _, tc:=range tcs {
		if k:=ErrorKind(tc.err); k!=tc.kind {
			t.Errorf("ErrorKind(%v)=%v; want %v", tc.err, k, tc.kind)
		}
	}
	if Kind(99).String()!="other" { t.Errorf("unknown kind name %s", Kind(99)) }
}

func TestConfigJSON(t *testing.T) {
	c:=&Config{}
	err:=json.Unmarshal([]byte(`{"matchRate":0.5, "direction":"targetToRef", "ransac":{"threshold":2}, "interpolation":"nearest"}`), c)
	if err!=nil { t.Fatal(err) }
	def:=NewConfigDefault()
	if c.MatchRate!=0.5 || c.Direction!=TargetToRef || c.Interpolation!=raster.Nearest {
		t.Errorf("explicit keys not applied: %+v", c)
	}
	if c.Ransac.Threshold!=2 || c.Ransac.MaxIters!=def.Ransac.MaxIters {
		t.Errorf("nested defaults lost: %+v", c.Ransac)
	}
	if c.MaxFeatures!=def.MaxFeatures || c.Feature!=def.Feature || !c.CrossCheck {
		t.Errorf("defaults lost: %+v", c)
	}
	if err:=c.Validate(); err!=nil { t.Errorf("Validate: %s", err) }

	if err:=json.Unmarshal([]byte(`{"direction":"sideways"}`), c); err==nil {
		t.Errorf("unknown direction accepted")
	}
	out, err:=json.Marshal(def)
	if err!=nil { t.Fatal(err) }
	back:=&Config{}
	if err:=json.Unmarshal(out, back); err!=nil || *back!=*def {
		t.Errorf("round trip mismatch: %v %+v", err, back)
	}
}

func TestConfigValidate(t *testing.T) {
	mods:=[]func(c *Config){
		func(c *Config) { c.MaxFeatures=0 },
		func(c *Config) { c.MatchRate=1.5 },
		func(c *Config) { c.MaxDistance=-1 },
		func(c *Config) { c.Direction=Direction(7) },
		func(c *Config) { c.Interpolation=raster.Interpolation(5) },
		func(c *Config) { c.Ransac.Threshold=0 },
	}
	for i, mod:=range mods {
		c:=NewConfigDefault()
		mod(c)
		if err:=c.Validate(); err==nil { t.Errorf("case %d: invalid config accepted", i) }
	}
}

func TestLoadConfig(t *testing.T) {
	dir:=t.TempDir()
	fileName:=filepath.Join(dir, "coreg.json")
	if err:=os.WriteFile(fileName, []byte(`{"maxFeatures":500}`), 0644); err!=nil { t.Fatal(err) }
	c, err:=LoadConfig(fileName)
	if err!=nil { t.Fatal(err) }
	if c.MaxFeatures!=500 || c.MatchRate!=NewConfigDefault().MatchRate {
		t.Errorf("LoadConfig=%+v", c)
	}
	if _, err:=LoadConfig(filepath.Join(dir, "missing.json")); err==nil {
		t.Errorf("missing file accepted")
	}
}

func TestLoadConfigOnto(t *testing.T) {
	fileName:=filepath.Join(t.TempDir(), "coreg.json")
	if err:=os.WriteFile(fileName, []byte(`{"maxFeatures":500}`), 0644); err!=nil { t.Fatal(err) }
	base:=NewConfigDefault()
	base.Direction=TargetToRef
	c, err:=LoadConfigOnto(fileName, base)
	if err!=nil { t.Fatal(err) }
	if c.MaxFeatures!=500 || c.Direction!=TargetToRef { t.Errorf("LoadConfigOnto=%+v", c) }
	if base.MaxFeatures!=NewConfigDefault().MaxFeatures { t.Errorf("base modified: %+v", base) }

	if err:=os.WriteFile(fileName, []byte(`{"direction":"refToTarget"}`), 0644); err!=nil { t.Fatal(err) }
	if c, err=LoadConfigOnto(fileName, base); err!=nil || c.Direction!=RefToTarget {
		t.Errorf("direction from file not applied: %v %+v", err, c)
	}
}

func TestRegisterFiles(t *testing.T) {
	dir:=t.TempDir()
	ref:=rectangles(200, 200, 30, 21)
	p:=DefaultPaths(filepath.Join(dir, "ref.png"), filepath.Join(dir, "target.png"))
	p.Plot=filepath.Join(dir, "dist.png")
	if err:=ref.WriteFile(p.Ref); err!=nil { t.Fatal(err) }
	if err:=shift(ref, 4, 2).WriteFile(p.Target); err!=nil { t.Fatal(err) }

	res, err:=RegisterFiles(context.Background(), testContext(2), nil, p)
	if err!=nil { t.Fatalf("RegisterFiles: %s", err) }
	if res.NumInliers<4 { t.Errorf("%d inliers", res.NumInliers) }
	if p.Aligned!=filepath.Join(dir, "target_aligned.png") { t.Errorf("aligned path %s", p.Aligned) }
	for _, f:=range []string{p.Aligned, p.Matches, p.Plot} {
		if st, err:=os.Stat(f); err!=nil || st.Size()==0 {
			t.Errorf("output %s missing or empty: %v", f, err)
		}
	}
	aligned, err:=raster.ReadFile(p.Aligned, 2)
	if err!=nil { t.Fatal(err) }
	if aligned.Width!=200 || aligned.Height!=200 { t.Errorf("aligned size %s", aligned.DimensionsToString()) }
}

func TestRegisterFilesErrors(t *testing.T) {
	dir:=t.TempDir()
	p:=DefaultPaths(filepath.Join(dir, "nope.png"), filepath.Join(dir, "neither.png"))
	_, err:=RegisterFiles(context.Background(), testContext(1), nil, p)
	if ErrorKind(err)!=KindLoad { t.Errorf("kind=%v; want load", ErrorKind(err)) }

	ref:=rectangles(160, 160, 25, 9)
	p=DefaultPaths(filepath.Join(dir, "ref.png"), filepath.Join(dir, "target.png"))
	p.Aligned=filepath.Join(dir, "no", "such", "dir", "aligned.png")
	if err:=ref.WriteFile(p.Ref); err!=nil { t.Fatal(err) }
	if err:=ref.WriteFile(p.Target); err!=nil { t.Fatal(err) }
	res, err:=RegisterFiles(context.Background(), testContext(1), nil, p)
	if ErrorKind(err)!=KindWrite { t.Errorf("kind=%v; want write", ErrorKind(err)) }
	if res==nil { t.Errorf("result dropped on write error") }
}
