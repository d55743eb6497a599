package filestore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/abhayk2/localDrop/internal/utils"
)

const (
	catalogFileName = "catalog.db"
	blobDirName     = "files"
)

var (
	ErrInvalidName    = errors.New("invalid filename")
	ErrEmptyFile      = errors.New("empty file")
	ErrTooLarge       = errors.New("file exceeds upload limit")
	ErrThreatDetected = errors.New("threat detected")
	ErrNotFound       = errors.New("file not found")
)

var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS files (
  file_id     TEXT PRIMARY KEY,
  filename    TEXT NOT NULL UNIQUE,
  filesize    INTEGER NOT NULL,
  filetype    TEXT NOT NULL,
  checksum    TEXT NOT NULL,
  verdict     TEXT NOT NULL CHECK(verdict IN ('clean')),
  uploaded_at INTEGER NOT NULL
);
`,
	`
CREATE INDEX IF NOT EXISTS idx_files_uploaded_at
ON files (uploaded_at DESC, file_id);
`,
}

// Record is one catalog entry.
type Record struct {
	ID         string    `json:"id" msgpack:"id"`
	Name       string    `json:"name" msgpack:"name"`
	Size       int64     `json:"size" msgpack:"size"`
	MimeType   string    `json:"type" msgpack:"type"`
	SHA256     string    `json:"sha256" msgpack:"sha256"`
	UploadedAt time.Time `json:"uploadedAt" msgpack:"uploaded_at"`
}

// Options configure a Store.
type Options struct {
	Dir     string
	MaxSize int64
	Scanner Scanner
	Logger  *zap.Logger
}

// Store keeps uploaded files on disk with a SQLite catalog next to them.
type Store struct {
	db      *sql.DB
	blobDir string
	maxSize int64
	scanner Scanner
	logger  *zap.Logger

	// serialises name allocation so two uploads cannot claim one name
	mu        sync.Mutex
	closeOnce sync.Once
}

// Open creates the store directory if needed, opens the catalog and runs
// migrations.
func Open(opts Options) (*Store, error) {
	if opts.Dir == "" {
		return nil, errors.New("store directory is required")
	}
	blobDir := filepath.Join(opts.Dir, blobDirName)
	if err := os.MkdirAll(blobDir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", filepath.ToSlash(filepath.Join(opts.Dir, catalogFileName)))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping catalog: %w", err)
	}

	scanner := opts.Scanner
	if scanner == nil {
		scanner = NewSignatureScanner()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{
		db:      db,
		blobDir: blobDir,
		maxSize: opts.MaxSize,
		scanner: scanner,
		logger:  logger,
	}
	if err := s.applyMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) applyMigrations() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version >= len(migrations) {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i := version; i < len(migrations); i++ {
		if _, err := tx.Exec(migrations[i]); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d;", i+1)); err != nil {
			return fmt.Errorf("set schema version %d: %w", i+1, err)
		}
	}
	return tx.Commit()
}

// Close closes the catalog.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() { err = s.db.Close() })
	return err
}

// Save stores the content of r under a sanitised form of name. Content is
// spooled to a temporary file, scanned, then published. When the name is
// taken a numbered variant is used.
func (s *Store) Save(ctx context.Context, name string, r io.Reader) (*Record, error) {
	clean := utils.SanitizeFilename(filepath.Base(strings.ReplaceAll(name, `\`, "/")))
	if clean == "" {
		return nil, ErrInvalidName
	}

	tmp, err := os.CreateTemp(s.blobDir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	src := r
	if s.maxSize > 0 {
		src = io.LimitReader(r, s.maxSize+1)
	}
	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hash), src)
	if err != nil {
		return nil, fmt.Errorf("spool upload: %w", err)
	}
	if size == 0 {
		return nil, ErrEmptyFile
	}
	if s.maxSize > 0 && size > s.maxSize {
		return nil, ErrTooLarge
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	verdict, err := s.scanner.Scan(ctx, clean, tmp)
	if err != nil {
		return nil, fmt.Errorf("scan upload: %w", err)
	}
	if !verdict.Clean {
		s.logger.Warn("upload rejected", zap.String("file", clean), zap.String("threat", verdict.Threat))
		return nil, fmt.Errorf("%w: %s", ErrThreatDetected, verdict.Threat)
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}

	mimeType := mime.TypeByExtension(filepath.Ext(clean))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	final := filepath.Base(utils.GetUniqueFilename(filepath.Join(s.blobDir, clean)))
	rec := &Record{
		ID:         uuid.NewString(),
		Name:       final,
		Size:       size,
		MimeType:   mimeType,
		SHA256:     hex.EncodeToString(hash.Sum(nil)),
		UploadedAt: time.Now().UTC(),
	}

	if err := os.Rename(tmp.Name(), filepath.Join(s.blobDir, final)); err != nil {
		return nil, fmt.Errorf("publish upload: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO files (file_id, filename, filesize, filetype, checksum, verdict, uploaded_at)
		VALUES (?, ?, ?, ?, ?, 'clean', ?)`,
		rec.ID, rec.Name, rec.Size, rec.MimeType, rec.SHA256, rec.UploadedAt.UnixMilli(),
	)
	if err != nil {
		_ = os.Remove(filepath.Join(s.blobDir, final))
		return nil, fmt.Errorf("insert file %q: %w", rec.Name, err)
	}

	s.logger.Info("upload stored", zap.String("file", rec.Name), zap.Int64("size", rec.Size))
	return rec, nil
}

// ValidName reports whether name can be looked up verbatim.
func ValidName(name string) bool {
	return name != "" && !strings.Contains(name, "..") && !strings.ContainsAny(name, `/\`)
}

// Open returns the stored file called exactly name.
func (s *Store) Open(ctx context.Context, name string) (*os.File, *Record, error) {
	if !ValidName(name) {
		return nil, nil, ErrInvalidName
	}

	rec, err := s.lookup(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(filepath.Join(s.blobDir, rec.Name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	return f, rec, nil
}

func (s *Store) lookup(ctx context.Context, name string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT file_id, filename, filesize, filetype, checksum, uploaded_at FROM files WHERE filename = ?`, name)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup file %q: %w", name, err)
	}
	return rec, nil
}

// List returns the catalog, newest first.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_id, filename, filesize, filetype, checksum, uploaded_at FROM files
		ORDER BY uploaded_at DESC, file_id`)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file row: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var uploaded int64
	if err := row.Scan(&rec.ID, &rec.Name, &rec.Size, &rec.MimeType, &rec.SHA256, &uploaded); err != nil {
		return nil, err
	}
	rec.UploadedAt = time.UnixMilli(uploaded).UTC()
	return &rec, nil
}
