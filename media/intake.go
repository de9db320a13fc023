package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Kind enumerates the media categories a message may carry.
type Kind string

const (
	KindImage    Kind = "image"
	KindDocument Kind = "document"
	KindVoice    Kind = "voice"
)

var (
	// ErrUnsupportedKind signals an intake for an unknown media kind.
	ErrUnsupportedKind = errors.New("media: unsupported kind")
	// ErrBadFileType signals a file whose extension doesn't match the kind.
	ErrBadFileType = errors.New("media: file type not allowed for kind")
	// ErrEmptyName signals an intake without a file name.
	ErrEmptyName = errors.New("media: empty file name")
	// ErrStoreFailed wraps a blob-storage failure. The pending message is
	// aborted; the participant must re-attempt, there is no automatic retry.
	ErrStoreFailed = errors.New("media: store failed")
)

var allowedExtensions = map[Kind][]string{
	KindImage:    {".jpg", ".jpeg", ".png", ".gif", ".webp"},
	KindDocument: {".pdf", ".doc", ".docx", ".txt", ".xls", ".xlsx", ".zip"},
	KindVoice:    {".webm", ".ogg", ".mp3", ".wav", ".m4a"},
}

// Intake is the two-phase media pipeline: store the blob first, and only on
// success hand the reference back for the caller to append a message. A
// failed store creates no message.
type Intake struct {
	storage Storage
	timeout time.Duration
}

// NewIntake builds the pipeline. timeout bounds each store call; zero selects
// the 10s reference default. A timed-out store is a hard failure.
func NewIntake(storage Storage, timeout time.Duration) *Intake {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Intake{storage: storage, timeout: timeout}
}

// Store validates the file against its kind and stores the blob, returning
// the reference a media message is built from.
func (i *Intake) Store(ctx context.Context, kind Kind, name string, blob io.Reader) (Stored, error) {
	if name == "" {
		return Stored{}, ErrEmptyName
	}
	exts, ok := allowedExtensions[kind]
	if !ok {
		return Stored{}, ErrUnsupportedKind
	}
	ext := strings.ToLower(path.Ext(name))
	if !contains(exts, ext) {
		return Stored{}, fmt.Errorf("%w: %s %q", ErrBadFileType, kind, ext)
	}

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	stored, err := i.storage.Store(ctx, kind, name, blob)
	if err != nil {
		return Stored{}, fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	return stored, nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
