package repository

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"codearena/internal/common/storage"
	appErr "codearena/pkg/errors"

	"github.com/klauspost/compress/zstd"
)

const archiveContentType = "application/zstd"

// SourceArchive keeps a copy of every formally submitted source.
type SourceArchive interface {
	Store(ctx context.Context, entry ArchiveEntry) (string, error)
	Load(ctx context.Context, objectKey string) (string, error)
}

// ArchiveEntry describes one archived submission.
type ArchiveEntry struct {
	AttemptID   string
	ChallengeID string
	TeamID      string
	Language    string
	Source      string
}

// ObjectSourceArchive writes zstd-compressed sources to object storage.
type ObjectSourceArchive struct {
	storage storage.ObjectStorage
	bucket  string
	prefix  string
	now     func() time.Time
}

// NewObjectSourceArchive creates an archive under bucket/prefix.
func NewObjectSourceArchive(objStorage storage.ObjectStorage, bucket, prefix string) *ObjectSourceArchive {
	return &ObjectSourceArchive{
		storage: objStorage,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		now:     time.Now,
	}
}

// Store compresses and uploads the source, returning its object key.
// Keys are content addressed within an attempt so retries overwrite rather than duplicate.
func (a *ObjectSourceArchive) Store(ctx context.Context, entry ArchiveEntry) (string, error) {
	if a == nil || a.storage == nil {
		return "", appErr.New(appErr.ServiceUnavailable).WithMessage("source archive is not configured")
	}
	if entry.AttemptID == "" {
		return "", appErr.ValidationError("attempt_id", "required")
	}

	sum := sha256.Sum256([]byte(entry.Source))
	team := entry.TeamID
	if team == "" {
		team = "anonymous"
	}
	objectKey := path.Join(a.prefix, team, entry.ChallengeID, entry.AttemptID,
		fmt.Sprintf("%s-%s.zst", a.now().UTC().Format("20060102"), hex.EncodeToString(sum[:8])))

	compressed, err := compress([]byte(entry.Source))
	if err != nil {
		return "", appErr.Wrapf(err, appErr.SourceArchiveFailed, "compress source failed")
	}
	if err := a.storage.PutObject(ctx, a.bucket, objectKey, bytes.NewReader(compressed), int64(len(compressed)), archiveContentType); err != nil {
		return "", appErr.Wrapf(err, appErr.SourceArchiveFailed, "upload source failed")
	}
	return objectKey, nil
}

// Load downloads and decompresses an archived source.
func (a *ObjectSourceArchive) Load(ctx context.Context, objectKey string) (string, error) {
	if a == nil || a.storage == nil {
		return "", appErr.New(appErr.ServiceUnavailable).WithMessage("source archive is not configured")
	}
	reader, err := a.storage.GetObject(ctx, a.bucket, objectKey)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.SourceArchiveFailed, "download source failed")
	}
	defer reader.Close()

	dec, err := zstd.NewReader(reader)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.SourceArchiveFailed, "create zstd reader failed")
	}
	defer dec.Close()

	data, err := io.ReadAll(dec)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.SourceArchiveFailed, "decompress source failed")
	}
	return string(data), nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, err
	}
	if _, err := enc.Write(data); err != nil {
		_ = enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
