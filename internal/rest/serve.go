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


package rest

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mlnoga/coreg/internal/coreg"
	"github.com/mlnoga/coreg/internal/ops"
	"github.com/mlnoga/coreg/internal/raster"
	"github.com/mlnoga/coreg/web"
)

// Upper bound on the in-memory part of multipart uploads
const MaxMultipartMemory = 64 << 20

// Returns the HTTP handler of the registration service. Log output of c is also
// streamed to websocket clients of /api/v1/log
func NewRouter(c *ops.Context) *gin.Engine {
	hub:=newLogHub()
	sc:=*c
	sc.Log=io.MultiWriter(c.Writer(), hub)
	s:=&server{ctx: &sc}

	r:=gin.New()
	r.Use(gin.LoggerWithWriter(sc.Log), gin.Recovery())
	r.MaxMultipartMemory=MaxMultipartMemory

	r.GET("/", getIndex)
	api:=r.Group("/api")
	{
		v1:=api.Group("/v1")
		{
			v1.GET ("/ping",     getPing)
			v1.POST("/register", s.postRegister)
			v1.POST("/align",    s.postAlign)
			v1.GET ("/log",      hub.getLog)
		}
	}
	return r
}

// Listens on the given address and serves requests until an error occurs
func Serve(addr string, c *ops.Context) error {
	fmt.Fprintf(c.Writer(), "Serving on %s\n", addr)
	return NewRouter(c).Run(addr)
}

type server struct {
	ctx *ops.Context
}

func getIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", web.IndexHTML)
}

func getPing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

type postRegisterArgs struct {
	RefPath      string        `json:"refPath"     binding:"required"`
	TargetPath   string        `json:"targetPath"  binding:"required"`
	AlignedPath  string        `json:"alignedPath"`
	MatchesPath  string        `json:"matchesPath"`
	PlotPath     string        `json:"plotPath"`
	Config       *coreg.Config `json:"config"`
}

// Summary of a registration result
type registerReply struct {
	H                [9]float64  `json:"h"`
	NumInliers       int         `json:"numInliers"`
	NumMatches       int         `json:"numMatches"`
	NumRetained      int         `json:"numRetained"`
	KeypointsRef     int         `json:"keypointsRef"`
	KeypointsTarget  int         `json:"keypointsTarget"`
	RMSE             float64     `json:"rmse"`
	Direction        string      `json:"direction"`
}

func newRegisterReply(res *coreg.Result) registerReply {
	return registerReply{
		H               : res.H,
		NumInliers      : res.NumInliers,
		NumMatches      : res.NumMatches,
		NumRetained     : len(res.Matches),
		KeypointsRef    : len(res.KeypointsRef),
		KeypointsTarget : len(res.KeypointsTarget),
		RMSE            : res.RMSE,
		Direction       : res.Direction.String(),
	}
}

func (s *server) postRegister(c *gin.Context) {
	var args postRegisterArgs
	if err:=c.ShouldBindJSON(&args); err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg:=args.Config
	if cfg==nil { cfg=coreg.NewConfigDefault() }
	if err:=cfg.Validate(); err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	paths:=coreg.DefaultPaths(args.RefPath, args.TargetPath)
	paths.Plot=args.PlotPath
	if args.AlignedPath!="" { paths.Aligned=args.AlignedPath }
	if args.MatchesPath!="" { paths.Matches=args.MatchesPath }

	res, err:=coreg.RegisterFiles(c.Request.Context(), s.ctx, cfg, paths)
	if err!=nil {
		abortWithKind(c, err)
		return
	}
	c.JSON(http.StatusOK, newRegisterReply(res))
}

// Registers two uploaded images and replies with the aligned image as PNG.
// The registration summary is returned in the X-Coreg-Result header
func (s *server) postAlign(c *gin.Context) {
	cfg:=coreg.NewConfigDefault()
	if text:=c.PostForm("config"); text!="" {
		if err:=json.Unmarshal([]byte(text), cfg); err!=nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "config: "+err.Error()})
			return
		}
	}
	if err:=cfg.Validate(); err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ref, err:=formImage(c, "ref", 0)
	if err!=nil {
		abortWithKind(c, err)
		return
	}
	target, err:=formImage(c, "target", 1)
	if err!=nil {
		abortWithKind(c, err)
		return
	}

	res, err:=coreg.Register(c.Request.Context(), s.ctx, ref, target, cfg)
	if err!=nil {
		abortWithKind(c, err)
		return
	}
	summary, err:=json.Marshal(newRegisterReply(res))
	if err==nil { c.Header("X-Coreg-Result", string(summary)) }
	c.Header("Content-Type", "image/png")
	c.Status(http.StatusOK)
	if err:=res.Aligned.EncodePNG(c.Writer); err!=nil {
		fmt.Fprintf(s.ctx.Writer(), "Error streaming aligned image: %s\n", err)
	}
}

// Decodes the uploaded image file of the given form field
func formImage(c *gin.Context, field string, id int) (*raster.Image, error) {
	fh, err:=c.FormFile(field)
	if err!=nil { return nil, &raster.LoadError{FileName: field, Err: err} }
	img, err:=decodeUpload(fh)
	if err!=nil { return nil, &raster.LoadError{FileName: fh.Filename, Err: err} }
	img.ID, img.FileName = id, fh.Filename
	return img, nil
}

func decodeUpload(fh *multipart.FileHeader) (*raster.Image, error) {
	f, err:=fh.Open()
	if err!=nil { return nil, err }
	defer f.Close()
	return raster.Read(f)
}

// Replies with the error and its kind. Pipeline failures are unprocessable input,
// anything unclassified is an internal error
func abortWithKind(c *gin.Context, err error) {
	kind:=coreg.ErrorKind(err)
	status:=http.StatusUnprocessableEntity
	if kind==coreg.KindOther || kind==coreg.KindWrite { status=http.StatusInternalServerError }
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error(), "kind": kind.String()})
}
