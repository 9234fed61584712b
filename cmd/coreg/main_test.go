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


package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/mlnoga/coreg/internal/coreg"
	"github.com/mlnoga/coreg/internal/raster"
	"github.com/mlnoga/coreg/internal/watch"
)

func TestExitCode(t *testing.T) {
	seen:=map[int]coreg.Kind{}
	for k:=coreg.KindNone; k<=coreg.KindOther; k++ {
		c:=exitCode(k)
		if prev, ok:=seen[c]; ok { t.Errorf("kinds %v and %v share exit code %d", prev, k, c) }
		seen[c]=k
	}
	if exitCode(coreg.KindNone)!=0 { t.Errorf("success exit code %d", exitCode(coreg.KindNone)) }
}

func TestRegisterFlags(t *testing.T) {
	var f registerFlags
	cmd:=&cobra.Command{Use: "x"}
	f.add(cmd, coreg.NewConfigDefault())
	if err:=cmd.ParseFlags([]string{"--matchRate", "0.4", "--direction", "targetToRef", "--interpolation", "nearest"}); err!=nil {
		t.Fatal(err)
	}
	cfg, err:=f.build(cmd)
	if err!=nil { t.Fatal(err) }
	def:=coreg.NewConfigDefault()
	if cfg.MatchRate!=0.4 || cfg.Direction!=coreg.TargetToRef || cfg.Interpolation!=raster.Nearest {
		t.Errorf("flags not applied: %+v", cfg)
	}
	if cfg.MaxFeatures!=def.MaxFeatures || cfg.Ransac!=def.Ransac { t.Errorf("unset flags changed config: %+v", cfg) }
}

func TestRegisterFlagsOverrideFile(t *testing.T) {
	fileName:=filepath.Join(t.TempDir(), "c.json")
	if err:=os.WriteFile(fileName, []byte(`{"maxFeatures":100, "matchRate":0.3}`), 0644); err!=nil { t.Fatal(err) }
	var f registerFlags
	cmd:=&cobra.Command{Use: "x"}
	f.add(cmd, coreg.NewConfigDefault())
	if err:=cmd.ParseFlags([]string{"--config", fileName, "--matchRate", "0.6"}); err!=nil { t.Fatal(err) }
	cfg, err:=f.build(cmd)
	if err!=nil { t.Fatal(err) }
	if cfg.MaxFeatures!=100 || cfg.MatchRate!=0.6 { t.Errorf("config %+v", cfg) }

	if err:=cmd.ParseFlags([]string{"--direction", "up"}); err!=nil { t.Fatal(err) }
	if _, err:=f.build(cmd); err==nil { t.Errorf("invalid direction accepted") }
}

func TestWatchFlagsDirection(t *testing.T) {
	fileName:=filepath.Join(t.TempDir(), "c.json")
	if err:=os.WriteFile(fileName, []byte(`{"maxFeatures":100}`), 0644); err!=nil { t.Fatal(err) }
	tcs:=[]struct {
		args []string
		want coreg.Direction
	}{
		{nil, coreg.TargetToRef},
		{[]string{"--config", fileName}, coreg.TargetToRef},
		{[]string{"--direction", "refToTarget"}, coreg.RefToTarget},
	}
	for _, tc:=range tcs {
		var f registerFlags
		cmd:=&cobra.Command{Use: "x"}
		f.add(cmd, watch.NewConfigDefault())
		if err:=cmd.ParseFlags(tc.args); err!=nil { t.Fatal(err) }
		cfg, err:=f.build(cmd)
		if err!=nil { t.Fatal(err) }
		if cfg.Direction!=tc.want { t.Errorf("%v: direction %v; want %v", tc.args, cfg.Direction, tc.want) }
	}
	if d:=watch.NewConfigDefault().Direction; d!=coreg.TargetToRef { t.Errorf("watch default modified: %v", d) }
}

func TestExecuteRegisterMissingFile(t *testing.T) {
	dir:=t.TempDir()
	err:=execute([]string{"register", filepath.Join(dir, "a.png"), filepath.Join(dir, "b.png")})
	if coreg.ErrorKind(err)!=coreg.KindLoad { t.Errorf("err=%v; want load error", err) }
	if err:=execute([]string{"register", "only-one.png"}); err==nil { t.Errorf("missing argument accepted") }
}

func TestExecuteVersion(t *testing.T) {
	if err:=execute([]string{"version"}); err!=nil { t.Errorf("version: %s", err) }
}
