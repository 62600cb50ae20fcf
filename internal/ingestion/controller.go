// Package ingestion drives uploads of logistics, delivery planning and
// attendance files to the model registry.
package ingestion

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/mikana/dashboard/internal/forecastapi"
	"github.com/mikana/dashboard/internal/metrics"
	"github.com/mikana/dashboard/internal/models"
	"github.com/mikana/dashboard/internal/store"
)

var (
	ErrUploadPending  = errors.New("ingestion: an upload is already in progress")
	ErrEmptySelection = errors.New("ingestion: no file selected")
	ErrUnknownModule  = errors.New("ingestion: unknown module")
)

// Uploader is the registry side of the forecast client.
type Uploader interface {
	UploadModuleFiles(ctx context.Context, job models.UploadJob) (*forecastapi.UploadResult, error)
	LastLogisticFile(ctx context.Context) (string, error)
}

// Auditor records upload runs. *store.Store implements it.
type Auditor interface {
	StartUploadRun(clientID, module, mode string, fileCount int, totalBytes int64) (*store.UploadRun, error)
	CompleteUploadRun(run *store.UploadRun) error
}

type BannerKind string

const (
	BannerSuccess BannerKind = "success"
	BannerError   BannerKind = "error"
)

type Banner struct {
	Kind    BannerKind `json:"kind"`
	Message string     `json:"message"`
}

// Rejection explains why a file was not added to the selection.
type Rejection struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

type SelectedFile struct {
	Name         string `json:"name"`
	RelativePath string `json:"relativePath"`
	ContentType  string `json:"contentType"`
	Size         int64  `json:"size"`
}

// Status is a copy of the controller state for rendering.
type Status struct {
	Module       models.UploadModule             `json:"module"`
	Mode         models.UploadMode               `json:"mode"`
	Requirements models.UploadModuleRequirements `json:"requirements"`
	Files        []SelectedFile                  `json:"files"`
	Pending      bool                            `json:"pending"`
	Banner       *Banner                         `json:"banner,omitempty"`
	Rejections   []Rejection                     `json:"rejections,omitempty"`
	LastResult   *forecastapi.UploadResult       `json:"lastResult,omitempty"`
}

type Config struct {
	ClientID string
	Auditor  Auditor
	Now      func() time.Time
}

// Controller owns one operator's file selection until it is uploaded or
// cleared. Only one upload runs at a time.
type Controller struct {
	client Uploader
	cfg    Config

	mu           sync.Mutex
	module       models.UploadModule
	mode         models.UploadMode
	files        []models.FileRef
	paths        []string
	pending      bool
	banner       *Banner
	rejections   []Rejection
	lastResult   *forecastapi.UploadResult
	lastAccepted string
}

func New(client Uploader, cfg Config) *Controller {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Controller{
		client: client,
		cfg:    cfg,
		module: models.ModuleOrders,
		mode:   models.UploadFiles,
	}
}

// SetModule switches the target module. Selected files that the new module
// refuses are dropped and reported. Switching to orders refreshes the last
// accepted logistics file.
func (c *Controller) SetModule(ctx context.Context, module models.UploadModule) ([]Rejection, error) {
	if !module.Valid() {
		return nil, ErrUnknownModule
	}

	c.mu.Lock()
	c.module = module
	c.banner = nil
	c.lastAccepted = ""
	var keptFiles []models.FileRef
	var keptPaths []string
	var rejected []Rejection
	for i, f := range c.files {
		if reason := checkFile(module, f); reason != "" {
			rejected = append(rejected, Rejection{File: f.Name, Reason: reason})
			continue
		}
		keptFiles = append(keptFiles, f)
		keptPaths = append(keptPaths, c.paths[i])
	}
	c.files, c.paths = keptFiles, keptPaths
	c.rejections = rejected
	c.mu.Unlock()

	if module == models.ModuleOrders {
		c.refreshLastAccepted(ctx)
	}
	return rejected, nil
}

func (c *Controller) refreshLastAccepted(ctx context.Context) {
	name, err := c.client.LastLogisticFile(ctx)
	if err != nil {
		if !forecastapi.IsAborted(err) {
			log.Printf("ingestion: last logistic file: %v", err)
		}
		return
	}
	c.mu.Lock()
	if c.module == models.ModuleOrders {
		c.lastAccepted = name
	}
	c.mu.Unlock()
}

// SetMode selects files or folder mode. The flag is forwarded verbatim.
func (c *Controller) SetMode(mode models.UploadMode) error {
	switch mode {
	case models.UploadFiles, models.UploadFolder:
	default:
		return fmt.Errorf("ingestion: unknown mode %q", mode)
	}
	c.mu.Lock()
	c.mode = mode
	c.mu.Unlock()
	return nil
}

// AddFiles adds files to the selection. relativePaths may be nil, in which
// case each file's path is its name. Names and paths are stored in NFC form.
// A file with the same path replaces the previous one.
func (c *Controller) AddFiles(files []models.FileRef, relativePaths []string) ([]Rejection, error) {
	if relativePaths != nil && len(relativePaths) != len(files) {
		return nil, fmt.Errorf("ingestion: %d files but %d paths", len(files), len(relativePaths))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var rejected []Rejection
	for i, f := range files {
		if f.Size == 0 {
			f.Size = int64(len(f.Content))
		}
		// macOS pickers report decomposed accents.
		f.Name = norm.NFC.String(f.Name)
		if reason := checkFile(c.module, f); reason != "" {
			rejected = append(rejected, Rejection{File: f.Name, Reason: reason})
			continue
		}
		p := f.Name
		if relativePaths != nil && relativePaths[i] != "" {
			p = norm.NFC.String(relativePaths[i])
		}
		if j := slices.Index(c.paths, p); j >= 0 {
			c.files[j] = f
			continue
		}
		c.files = append(c.files, f)
		c.paths = append(c.paths, p)
	}
	c.rejections = rejected
	c.banner = nil
	return rejected, nil
}

// RemoveFile drops the file at relativePath from the selection.
func (c *Controller) RemoveFile(relativePath string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := slices.Index(c.paths, relativePath)
	if i < 0 {
		return false
	}
	c.files = slices.Delete(c.files, i, i+1)
	c.paths = slices.Delete(c.paths, i, i+1)
	return true
}

// Clear releases the selection and any banner.
func (c *Controller) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files, c.paths = nil, nil
	c.rejections = nil
	c.banner = nil
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	req := Requirements(c.module, c.cfg.Now())
	req.LastAcceptedFilename = c.lastAccepted
	st := Status{
		Module:       c.module,
		Mode:         c.mode,
		Requirements: req,
		Pending:      c.pending,
		Rejections:   slices.Clone(c.rejections),
		Files:        make([]SelectedFile, len(c.files)),
	}
	for i, f := range c.files {
		st.Files[i] = SelectedFile{Name: f.Name, RelativePath: c.paths[i], ContentType: fileType(f), Size: f.Size}
	}
	if c.banner != nil {
		b := *c.banner
		st.Banner = &b
	}
	if c.lastResult != nil {
		r := *c.lastResult
		r.SavedFiles = slices.Clone(r.SavedFiles)
		st.LastResult = &r
	}
	return st
}

// Submit uploads the current selection. Success clears it; any failure keeps
// it for a retry. A cancelled upload changes nothing.
func (c *Controller) Submit(ctx context.Context) (*forecastapi.UploadResult, error) {
	c.mu.Lock()
	if c.pending {
		c.mu.Unlock()
		return nil, ErrUploadPending
	}
	if len(c.files) == 0 {
		c.mu.Unlock()
		return nil, ErrEmptySelection
	}
	job := models.UploadJob{
		Module:        c.module,
		Files:         slices.Clone(c.files),
		RelativePaths: slices.Clone(c.paths),
		Mode:          c.mode,
	}
	c.pending = true
	c.mu.Unlock()

	run := c.startRun(job)
	res, err := c.client.UploadModuleFiles(ctx, job)

	c.mu.Lock()
	c.pending = false
	outcome := "success"
	switch {
	case err == nil:
		c.dropUploadedLocked(job)
		c.rejections = nil
		c.lastResult = res
		c.banner = &Banner{Kind: BannerSuccess, Message: res.Message}
	case forecastapi.IsAborted(err):
		outcome = "aborted"
	default:
		apiErr := forecastapi.AsError("upload", err)
		outcome = "failed"
		if apiErr.Kind == forecastapi.KindHTTP && apiErr.Status >= 400 && apiErr.Status < 500 {
			outcome = "rejected"
		}
		c.banner = &Banner{Kind: BannerError, Message: apiErr.Message()}
		log.Printf("ingestion: upload %s (%d files) %s: %v", job.Module, len(job.Files), outcome, err)
	}
	c.mu.Unlock()

	metrics.UploadsTotal.WithLabelValues(string(job.Module), outcome).Inc()
	c.completeRun(run, outcome, res, err)

	if err == nil && job.Module == models.ModuleOrders {
		c.refreshLastAccepted(ctx)
	}
	return res, err
}

// dropUploadedLocked removes the files sent in job. Files added or replaced
// while the upload was in flight stay selected.
func (c *Controller) dropUploadedLocked(job models.UploadJob) {
	var keptFiles []models.FileRef
	var keptPaths []string
	for i, f := range c.files {
		j := slices.Index(job.RelativePaths, c.paths[i])
		if j >= 0 && sameFile(job.Files[j], f) {
			continue
		}
		keptFiles = append(keptFiles, f)
		keptPaths = append(keptPaths, c.paths[i])
	}
	c.files, c.paths = keptFiles, keptPaths
}

func sameFile(a, b models.FileRef) bool {
	return a.Name == b.Name && a.Size == b.Size && bytes.Equal(a.Content, b.Content)
}

func (c *Controller) startRun(job models.UploadJob) *store.UploadRun {
	if c.cfg.Auditor == nil {
		return nil
	}
	var total int64
	for _, f := range job.Files {
		total += f.Size
	}
	run, err := c.cfg.Auditor.StartUploadRun(c.cfg.ClientID, string(job.Module), string(job.Mode), len(job.Files), total)
	if err != nil {
		log.Printf("ingestion: start upload run: %v", err)
		return nil
	}
	return run
}

func (c *Controller) completeRun(run *store.UploadRun, outcome string, res *forecastapi.UploadResult, err error) {
	if run == nil {
		return
	}
	run.Outcome = outcome
	switch {
	case res != nil:
		run.HTTPStatus = sql.NullInt64{Int64: 200, Valid: true}
		run.Message = sql.NullString{String: res.Message, Valid: true}
	case err != nil:
		apiErr := forecastapi.AsError("upload", err)
		if apiErr.Status != 0 {
			run.HTTPStatus = sql.NullInt64{Int64: int64(apiErr.Status), Valid: true}
		}
		run.Message = sql.NullString{String: apiErr.Error(), Valid: true}
	}
	if err := c.cfg.Auditor.CompleteUploadRun(run); err != nil {
		log.Printf("ingestion: complete upload run: %v", err)
	}
}
