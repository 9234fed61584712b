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
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	nl "github.com/mlnoga/coreg/internal"
	"github.com/mlnoga/coreg/internal/coreg"
	"github.com/mlnoga/coreg/internal/ops"
	"github.com/mlnoga/coreg/internal/raster"
	"github.com/mlnoga/coreg/internal/rest"
	"github.com/mlnoga/coreg/internal/watch"
)

const version = "0.1.0"

// Process-wide settings from the persistent flags
type app struct {
	logFile     string
	threads     int
	cpuprofile  string
	memprofile  string
	cpuFile     *os.File
	start       time.Time
}

func main() {
	a:=&app{start: time.Now()}
	root:=a.newRootCmd()
	err:=root.ExecuteContext(context.Background())
	a.finish()
	if err!=nil {
		kind:=coreg.ErrorKind(err)
		nl.LogPrintf("Error (%s): %s\n", kind, err.Error())
		nl.LogSync()
		os.Exit(exitCode(kind))
	}
	nl.LogSync()
}

// Process exit code per failure kind
func exitCode(k coreg.Kind) int {
	switch k {
	case coreg.KindNone                        : return 0
	case coreg.KindLoad                        : return 2
	case coreg.KindEmptyFeatureSet             : return 3
	case coreg.KindInsufficientCorrespondences : return 4
	case coreg.KindDegenerateModel             : return 5
	case coreg.KindWrite                       : return 6
	default                                    : return 1
	}
}

func (a *app) newRootCmd() *cobra.Command {
	root:=&cobra.Command{
		Use:   "coreg",
		Short: "Feature-based image co-registration",
		Long: `coreg Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Aligns a reference image onto a target image of the same scene: detects oriented binary
features in both, matches them, robustly estimates a homography and warps the reference.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	pf:=root.PersistentFlags()
	pf.StringVar(&a.logFile,    "log",        "",  "also save log output to `file`, rotated when large")
	pf.IntVar   (&a.threads,    "threads",    0,   "maximum number of threads, 0=number of physical cores")
	pf.StringVar(&a.cpuprofile, "cpuprofile", "",  "write cpu profile to `file`")
	pf.StringVar(&a.memprofile, "memprofile", "",  "write memory profile to `file`")

	root.AddCommand(a.newRegisterCmd())
	root.AddCommand(a.newServeCmd())
	root.AddCommand(a.newWatchCmd())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run:   func(cmd *cobra.Command, args []string) { nl.LogPrintf("Version %s\n", version) },
	})
	root.AddCommand(&cobra.Command{
		Use:   "legal",
		Short: "Show license and attribution information",
		Run:   func(cmd *cobra.Command, args []string) { nl.LogPrint(legal) },
	})
	return root
}

// Initializes logging to file and profiling, if selected
func (a *app) setup(cmd *cobra.Command, args []string) error {
	if a.logFile!="" {
		if err:=nl.LogAlsoToFile(a.logFile); err!=nil {
			return fmt.Errorf("unable to open logfile '%s': %w", a.logFile, err)
		}
	}
	if a.cpuprofile!="" {
		f, err:=os.Create(a.cpuprofile)
		if err!=nil { return fmt.Errorf("could not create CPU profile: %w", err) }
		if err:=pprof.StartCPUProfile(f); err!=nil {
			f.Close()
			return fmt.Errorf("could not start CPU profile: %w", err)
		}
		a.cpuFile=f
	}
	return nil
}

// Stops profiling and stores the memory profile, if selected
func (a *app) finish() {
	if a.cpuFile!=nil {
		pprof.StopCPUProfile()
		a.cpuFile.Close()
	}
	if a.memprofile!="" {
		f, err:=os.Create(a.memprofile)
		if err!=nil {
			nl.LogPrintf("Could not create memory profile: %s\n", err)
			return
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if err:=pprof.Lookup("allocs").WriteTo(f, 0); err!=nil {
			nl.LogPrintf("Could not write allocation profile: %s\n", err)
		}
	}
}

func (a *app) context() *ops.Context {
	return ops.NewContext(nl.LogWriter(), a.threads)
}

// Flags of a registration. Applied on top of the configuration file, only where set
type registerFlags struct {
	def            *coreg.Config  // Base settings before file and flags
	config         string
	maxFeatures    int
	matchRate      float64
	seed           uint32
	threshold      float64
	iters          int
	confidence     float64
	direction      string
	interpolation  string
	denoise        bool
}

func (f *registerFlags) add(cmd *cobra.Command, def *coreg.Config) {
	f.def=def
	fs:=cmd.Flags()
	fs.StringVar (&f.config,        "config",        "",                           "load settings from JSON `file`, flags override")
	fs.IntVar    (&f.maxFeatures,   "maxFeatures",   def.MaxFeatures,              "maximum number of keypoints per image")
	fs.Float64Var(&f.matchRate,     "matchRate",     def.MatchRate,                "fraction of best matches to keep, in (0,1]")
	fs.Uint32Var (&f.seed,          "seed",          def.Seed,                     "seed for random sampling, 0=fixed default")
	fs.Float64Var(&f.threshold,     "threshold",     def.Ransac.Threshold,         "maximum reprojection error of an inlier in pixels")
	fs.IntVar    (&f.iters,         "iters",         def.Ransac.MaxIters,          "maximum number of RANSAC trials")
	fs.Float64Var(&f.confidence,    "confidence",    def.Ransac.Confidence,        "RANSAC confidence for early termination")
	fs.StringVar (&f.direction,     "direction",     def.Direction.String(),       "refToTarget warps the reference into the target frame, targetToRef the reverse")
	fs.StringVar (&f.interpolation, "interpolation", def.Interpolation.String(),   "warp interpolation, bilinear or nearest")
	fs.BoolVar   (&f.denoise,       "denoise",       def.Denoise,                  "apply a 3x3 median filter before feature extraction")
}

// Returns the configuration from file and flags
func (f *registerFlags) build(cmd *cobra.Command) (*coreg.Config, error) {
	base:=*f.def
	cfg:=&base
	if f.config!="" {
		var err error
		if cfg, err=coreg.LoadConfigOnto(f.config, f.def); err!=nil { return nil, err }
	}
	fs:=cmd.Flags()
	if fs.Changed("maxFeatures") { cfg.MaxFeatures=f.maxFeatures }
	if fs.Changed("matchRate")   { cfg.MatchRate=f.matchRate }
	if fs.Changed("seed")        { cfg.Seed=f.seed }
	if fs.Changed("threshold")   { cfg.Ransac.Threshold=f.threshold }
	if fs.Changed("iters")       { cfg.Ransac.MaxIters=f.iters }
	if fs.Changed("confidence")  { cfg.Ransac.Confidence=f.confidence }
	if fs.Changed("denoise")     { cfg.Denoise=f.denoise }
	if fs.Changed("direction") {
		d, err:=coreg.ParseDirection(f.direction)
		if err!=nil { return nil, err }
		cfg.Direction=d
	}
	if fs.Changed("interpolation") {
		i, err:=raster.ParseInterpolation(f.interpolation)
		if err!=nil { return nil, err }
		cfg.Interpolation=i
	}
	return cfg, cfg.Validate()
}

func (a *app) newRegisterCmd() *cobra.Command {
	var flags registerFlags
	var out, matches, plot string
	cmd:=&cobra.Command{
		Use:   "register <ref> <target>",
		Short: "Align the reference image onto the target image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err:=flags.build(cmd)
			if err!=nil { return err }
			m, err:=json.MarshalIndent(cfg, "", "  ")
			if err!=nil { return err }
			nl.LogPrintf("Registering %s onto %s with these settings:\n%s\n", args[0], args[1], string(m))

			paths:=coreg.DefaultPaths(args[0], args[1])
			paths.Plot=plot
			if cmd.Flags().Changed("out")     { paths.Aligned=out }
			if cmd.Flags().Changed("matches") { paths.Matches=matches }

			res, err:=coreg.RegisterFiles(cmd.Context(), a.context(), cfg, paths)
			if res!=nil {
				nl.LogPrintf("Homography %v, %d inliers of %d matches\n", res.H, res.NumInliers, len(res.Matches))
			}
			if err==nil { nl.LogPrintf("\nDone after %v\n", time.Since(a.start)) }
			return err
		},
	}
	flags.add(cmd, coreg.NewConfigDefault())
	fs:=cmd.Flags()
	fs.StringVar(&out,     "out",     "", "save aligned image to `file`, default <target>_aligned.png")
	fs.StringVar(&matches, "matches", "", "save match visualization to `file`, default <target>_matches.jpg")
	fs.StringVar(&plot,    "plot",    "", "save histogram of match distances to `file`")
	return cmd
}

func (a *app) newServeCmd() *cobra.Command {
	var addr, chroot string
	var setuid int
	cmd:=&cobra.Command{
		Use:   "serve",
		Short: "Serve the registration REST API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err:=rest.MakeSandbox(nl.LogWriter(), chroot, setuid); err!=nil { return err }
			return rest.Serve(addr, a.context())
		},
	}
	fs:=cmd.Flags()
	fs.StringVar(&addr,   "addr",   ":8080", "listen on `address`")
	fs.StringVar(&chroot, "chroot", "",      "change filesystem root to `dir` before serving, requires root")
	fs.IntVar   (&setuid, "setuid", -1,      "change user id before serving, -1=keep")
	return cmd
}

func (a *app) newWatchCmd() *cobra.Command {
	var flags registerFlags
	var outDir string
	var settle time.Duration
	cmd:=&cobra.Command{
		Use:   "watch <ref> <dir>",
		Short: "Align new images in a directory onto the reference as they appear",
		Long:  `Watches a directory and warps every new image into the frame of the reference.
The outputs are written as <name>_aligned.png and <name>_matches.jpg. Use --direction refToTarget
to warp the reference into the frame of each new image instead.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err:=flags.build(cmd)
			if err!=nil { return err }
			w, err:=watch.NewWatcher(a.context(), args[0], args[1], cfg)
			if err!=nil { return err }
			if outDir!="" { w.OutDir=outDir }
			w.Settle=settle

			ctx, stop:=signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return w.Run(ctx)
		},
	}
	flags.add(cmd, watch.NewConfigDefault())
	fs:=cmd.Flags()
	fs.StringVar  (&outDir, "outDir", "",                  "write outputs to `dir`, default the watched directory")
	fs.DurationVar(&settle, "settle", watch.DefaultSettle, "wait this long after the last change to a file before reading it")
	return cmd
}

// Runs the root command with a background context. Used by tests
func execute(args []string) error {
	a:=&app{start: time.Now()}
	root:=a.newRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}
