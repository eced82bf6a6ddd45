package server

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"imgupload/internal/models"
	"imgupload/internal/storage"
	"imgupload/internal/upload"
)

type Server struct {
	cfg      *models.Config
	router   *gin.Engine
	uploader *upload.Uploader
	store    Store
	recorder *Recorder
	srv      *http.Server
}

func NewServer(cfg *models.Config, uploader *upload.Uploader, store Store, recorder *Recorder) *Server {
	r := gin.Default()
	if strings.HasPrefix(cfg.Upload.BaseURL, "/") {
		r.Static(cfg.Upload.BaseURL, cfg.Upload.Path)
	}

	s := &Server{cfg: cfg, router: r, uploader: uploader, store: store, recorder: recorder}
	s.srv = &http.Server{Addr: cfg.ServerAddr, Handler: r}

	r.POST("/upload", s.handleUpload)
	r.GET("/upload/:id", s.handleGetUpload)
	r.DELETE("/upload/:id", s.handleDeleteUpload)

	return s
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop() {
	s.srv.Close()
}

func (s *Server) handleUpload(c *gin.Context) {
	const op = "server.handleUpload"

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}
	files := form.File[s.cfg.Upload.Field]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": upload.MsgNoFile})
		return
	}

	srcs := make([]upload.Source, 0, len(files))
	for _, fh := range files {
		srcs = append(srcs, upload.FromMultipart(fh))
	}

	ctx := c.Request.Context()
	results, batchErr := s.uploader.ProcessBatch(ctx, srcs)
	for _, res := range results {
		if err := s.recorder.Complete(ctx, res); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
			return
		}
	}

	var abort *upload.AbortError
	switch {
	case errors.As(batchErr, &abort):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"file":    abort.Err.File,
			"errors":  abort.Err.Messages,
			"uploads": results,
		})
	case batchErr != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s: %v", op, batchErr)})
	default:
		c.JSON(http.StatusOK, gin.H{"uploads": results})
	}
}

func (s *Server) handleGetUpload(c *gin.Context) {
	const op = "server.handleGetUpload"

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}

	up, err := s.store.GetUpload(c.Request.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}
	c.JSON(http.StatusOK, up)
}

func (s *Server) handleDeleteUpload(c *gin.Context) {
	const op = "server.handleDeleteUpload"

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}

	ctx := c.Request.Context()
	up, err := s.store.GetUpload(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}

	// Delete files
	rec := up.Result.Record
	for _, th := range rec.Thumbs {
		os.Remove(th.Path)
	}
	os.Remove(rec.FullPath)

	if err := s.store.DeleteUpload(ctx, id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}

	c.Status(http.StatusNoContent)
}
