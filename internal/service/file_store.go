package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/autoeval-api/internal/observability"
	"github.com/noah-isme/autoeval-api/pkg/extract"
	"github.com/noah-isme/autoeval-api/pkg/filecodec"
)

// StoredFile describes an encrypted upload on disk.
type StoredFile struct {
	Name         string
	OriginalName string
	Ext          string
	MimeType     string
	Size         int64
	Checksum     string
}

// FileStore keeps uploads encrypted under a single directory.
type FileStore interface {
	Save(ctx context.Context, file *multipart.FileHeader) (StoredFile, error)
	// Open decrypts name into a scratch file. release removes it and must always be called.
	Open(name string) (path string, release func(), err error)
	Remove(name string) error
}

type encryptedFileStore struct {
	dir     string
	codec   *filecodec.Codec
	maxSize int64
	logger  zerolog.Logger
	tracer  trace.Tracer
}

// NewFileStore constructs a file store rooted at dir. The directory is created if needed.
func NewFileStore(dir string, codec *filecodec.Codec, maxSize int64, logger zerolog.Logger) (FileStore, error) {
	if dir == "" {
		dir = "uploads"
	}
	if maxSize <= 0 {
		maxSize = 10 * 1024 * 1024
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("%w: create upload dir: %w", filecodec.ErrIO, err)
	}

	return &encryptedFileStore{
		dir:     dir,
		codec:   codec,
		maxSize: maxSize,
		logger:  logger.With().Str("component", "file_store").Logger(),
		tracer:  otel.Tracer("github.com/noah-isme/autoeval-api/internal/service/file_store"),
	}, nil
}

// Save validates the upload, writes it to a temporary plaintext file and encrypts it in
// place. Only the .enc file remains afterwards.
func (s *encryptedFileStore) Save(ctx context.Context, file *multipart.FileHeader) (StoredFile, error) {
	_, span := s.tracer.Start(ctx, "upload.store")
	defer span.End()

	start := time.Now()
	defer func() {
		observability.UploadLatency().Observe(time.Since(start).Seconds())
	}()

	if file == nil {
		span.SetStatus(codes.Error, "validation failed")
		return StoredFile{}, ErrFileRequired
	}
	span.SetAttributes(
		attribute.String("upload.original_name", strings.TrimSpace(file.Filename)),
		attribute.Int64("upload.request_size", file.Size),
	)

	if file.Size > s.maxSize {
		return StoredFile{}, s.reject(span, "size", ErrUploadTooLarge)
	}

	handle, err := file.Open()
	if err != nil {
		span.RecordError(err)
		return StoredFile{}, fmt.Errorf("%w: open upload: %w", filecodec.ErrIO, err)
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, s.maxSize+1)); err != nil {
		span.RecordError(err)
		return StoredFile{}, fmt.Errorf("%w: read upload: %w", filecodec.ErrIO, err)
	}
	if int64(buf.Len()) > s.maxSize {
		return StoredFile{}, s.reject(span, "size", ErrUploadTooLarge)
	}
	if buf.Len() == 0 {
		return StoredFile{}, s.reject(span, "empty", ErrFileRequired)
	}

	mime := extract.DetectMime(buf.Bytes())
	span.SetAttributes(attribute.String("upload.detected_mime", mime))
	if !extract.IsSupported(mime) {
		return StoredFile{}, s.reject(span, "type", fmt.Errorf("%w: %s", ErrUploadTypeNotAllowed, mime))
	}

	checksum := sha256.Sum256(buf.Bytes())

	plain, err := os.CreateTemp(s.dir, ".incoming-*")
	if err != nil {
		span.RecordError(err)
		return StoredFile{}, fmt.Errorf("%w: create temp file: %w", filecodec.ErrIO, err)
	}
	plainPath := plain.Name()
	_, writeErr := plain.Write(buf.Bytes())
	closeErr := plain.Close()
	if writeErr != nil || closeErr != nil {
		_ = os.Remove(plainPath)
		return StoredFile{}, fmt.Errorf("%w: write temp file: %w", filecodec.ErrIO, errors.Join(writeErr, closeErr))
	}

	encrypted, err := s.codec.EncryptTo(plainPath, s.dir)
	if err != nil {
		_ = os.Remove(plainPath)
		observability.UploadRejected().WithLabelValues("storage").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "encryption failed")
		return StoredFile{}, err
	}

	stored := StoredFile{
		Name:         filepath.Base(encrypted),
		OriginalName: sanitizeFileName(file.Filename),
		Ext:          strings.ToLower(filepath.Ext(file.Filename)),
		MimeType:     mime,
		Size:         int64(buf.Len()),
		Checksum:     hex.EncodeToString(checksum[:]),
	}

	observability.UploadRequests().WithLabelValues(mime).Inc()
	span.SetStatus(codes.Ok, "stored")
	s.logger.Debug().Str("file", stored.Name).Str("mime", mime).Int64("size", stored.Size).Msg("upload encrypted")

	return stored, nil
}

func (s *encryptedFileStore) Open(name string) (string, func(), error) {
	path, err := s.resolve(name)
	if err != nil {
		return "", nil, err
	}

	plainPath, release, err := s.codec.Decrypt(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil, ErrStoredFileNotFound
		}
		return "", nil, err
	}

	return plainPath, release, nil
}

func (s *encryptedFileStore) Remove(name string) error {
	path, err := s.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: remove %s: %w", filecodec.ErrIO, name, err)
	}
	return nil
}

// resolve maps a stored name onto the upload directory, refusing anything that is not a
// bare .enc file name.
func (s *encryptedFileStore) resolve(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || filepath.Ext(name) != filecodec.Extension {
		return "", ErrStoredFileNotFound
	}
	return filepath.Join(s.dir, name), nil
}

func (s *encryptedFileStore) reject(span trace.Span, reason string, err error) error {
	observability.UploadRejected().WithLabelValues(reason).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)
	return err
}

func sanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	ext := strings.ToLower(filepath.Ext(name))
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '-'
		}
	}, base)
	base = strings.Trim(base, "-.")
	if base == "" {
		base = "upload"
	}
	return base + ext
}
