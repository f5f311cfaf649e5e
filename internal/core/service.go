package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/JonMunkholm/ledgerimport/internal/config"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultProcessTimeout is the ceiling for one ProcessJob run.
const DefaultProcessTimeout = 5 * time.Minute

// Options tunes the import pipeline.
type Options struct {
	UploadDir         string
	AllowedExtensions []string
	BatchSize         int
	ProcessTimeout    time.Duration
	MaxConcurrent     int
	MaxWait           time.Duration
	Columns           ColumnMap
	NetRatio          decimal.Decimal
}

// OptionsFromConfig converts the import section of the application config.
func OptionsFromConfig(cfg config.ImportConfig) (Options, error) {
	ratio, err := decimal.NewFromString(cfg.NetRatio)
	if err != nil {
		return Options{}, fmt.Errorf("parse net ratio %q: %w", cfg.NetRatio, err)
	}

	return Options{
		UploadDir:         cfg.UploadDir,
		AllowedExtensions: cfg.AllowedExtensions,
		BatchSize:         cfg.BatchSize,
		ProcessTimeout:    cfg.ProcessTimeout,
		MaxConcurrent:     cfg.MaxConcurrent,
		MaxWait:           cfg.MaxWaitTime,
		Columns: ColumnMap{
			Date:    cfg.DateColumn,
			Receipt: cfg.ReceiptColumn,
			Service: cfg.ServiceColumn,
			Stylist: cfg.StylistColumn,
			Amount:  cfg.AmountColumn,
		},
		NetRatio: ratio,
	}, nil
}

// Deps are the storage and decoding backends the pipeline runs against.
type Deps struct {
	State   StateStore
	Staging Staging
	Ledger  Ledger
	Catalog Catalog
	Decoder Decoder
}

// Service orchestrates the two-step import: StageUpload validates and stages
// a file, ProcessJob later commits the staged rows to the ledger.
type Service struct {
	staging Staging
	decoder Decoder

	tracker    *Tracker
	normalizer *Normalizer
	detector   *DuplicateDetector
	resolver   *Resolver
	committer  *Committer
	limiter    *ProcessLimiter
	jobLocks   *keyedMutex

	uploadDir  string
	extensions []string
	timeout    time.Duration
	now        func() time.Time
}

// NewService wires the pipeline components over deps.
func NewService(deps Deps, opts Options) (*Service, error) {
	switch {
	case deps.State == nil:
		return nil, fmt.Errorf("state store is required")
	case deps.Staging == nil:
		return nil, fmt.Errorf("staging store is required")
	case deps.Ledger == nil:
		return nil, fmt.Errorf("ledger is required")
	case deps.Catalog == nil:
		return nil, fmt.Errorf("catalog is required")
	case deps.Decoder == nil:
		return nil, fmt.Errorf("decoder is required")
	}

	if opts.Columns == (ColumnMap{}) {
		opts.Columns = DefaultColumnMap()
	}
	if opts.ProcessTimeout <= 0 {
		opts.ProcessTimeout = DefaultProcessTimeout
	}
	if len(opts.AllowedExtensions) == 0 {
		opts.AllowedExtensions = []string{".xlsx", ".csv"}
	}
	if opts.UploadDir == "" {
		opts.UploadDir = filepath.Join("data", "uploads")
	}

	extensions := make([]string, len(opts.AllowedExtensions))
	for i, ext := range opts.AllowedExtensions {
		extensions[i] = strings.ToLower(ext)
	}

	return &Service{
		staging:    deps.Staging,
		decoder:    deps.Decoder,
		tracker:    NewTracker(deps.State),
		normalizer: NewNormalizer(opts.Columns, opts.NetRatio),
		detector:   NewDuplicateDetector(deps.Ledger),
		resolver:   NewResolver(deps.Catalog),
		committer:  NewCommitter(deps.Ledger, opts.BatchSize),
		limiter:    NewProcessLimiter(opts.MaxConcurrent, opts.MaxWait),
		jobLocks:   newKeyedMutex(),
		uploadDir:  opts.UploadDir,
		extensions: extensions,
		timeout:    opts.ProcessTimeout,
		now:        time.Now,
	}, nil
}

// Status returns the latest status snapshot.
func (s *Service) Status(ctx context.Context) (StatusSnapshot, error) {
	return s.tracker.Status(ctx)
}

// GetJob returns a job by ID.
func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (Job, error) {
	return s.tracker.GetJob(ctx, id)
}

// ListJobs returns every job, newest first.
func (s *Service) ListJobs(ctx context.Context) ([]Job, error) {
	return s.tracker.ListJobs(ctx)
}

// CheckDuplicateFile reports whether a file with this content hash was
// uploaded before, and returns that job.
func (s *Service) CheckDuplicateFile(ctx context.Context, hash string) (Job, bool, error) {
	return s.tracker.FindJobByHash(ctx, strings.ToLower(hash))
}

// LimiterStatus returns the current processing-slot usage.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// WaitForJobs blocks until no job is processing or ctx is done.
func (s *Service) WaitForJobs(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// UploadRequest describes a file received from a client.
type UploadRequest struct {
	FileName       string
	Body           io.Reader
	AllowDuplicate bool
}

// AcceptUpload saves the body under the upload directory, rejects files whose
// content was uploaded before (unless AllowDuplicate), and registers and
// stages the saved file.
func (s *Service) AcceptUpload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	ext := strings.ToLower(filepath.Ext(req.FileName))
	if !slices.Contains(s.extensions, ext) {
		ie := errUnsupportedFile(ext)
		return UploadResult{Status: StatusError, Message: ie.Error(), Err: ie}, nil
	}

	path, hash, err := s.saveUpload(ext, req.Body)
	if err != nil {
		return UploadResult{}, err
	}

	if !req.AllowDuplicate {
		existing, found, err := s.tracker.FindJobByHash(ctx, hash)
		if err != nil {
			os.Remove(path)
			return UploadResult{}, err
		}
		if found {
			os.Remove(path)
			ie := errDuplicateFile(existing.ID.String())
			return UploadResult{Status: StatusError, JobID: existing.ID, Message: ie.Error(), Err: ie}, nil
		}
	}

	return s.RegisterUpload(ctx, RegisterRequest{
		FileName:     filepath.Base(req.FileName),
		Path:         path,
		Hash:         hash,
		UploadedFrom: GetIPAddressFromContext(ctx),
	})
}

// saveUpload streams body to a uniquely named file, hashing it on the way.
func (s *Service) saveUpload(ext string, body io.Reader) (path, hash string, err error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", "", fmt.Errorf("create upload dir: %w", err)
	}

	path = filepath.Join(s.uploadDir, uuid.New().String()+ext)
	f, err := os.Create(path)
	if err != nil {
		return "", "", fmt.Errorf("create upload file: %w", err)
	}

	h := sha256.New()
	_, copyErr := io.Copy(f, io.TeeReader(body, h))
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(path)
		if copyErr != nil {
			return "", "", fmt.Errorf("write upload file: %w", copyErr)
		}
		return "", "", fmt.Errorf("close upload file: %w", closeErr)
	}

	return path, hex.EncodeToString(h.Sum(nil)), nil
}

// HashFile returns the hex sha256 of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
