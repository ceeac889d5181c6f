package submission

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/barasher/go-exiftool"
	"github.com/rs/zerolog/log"
)

// Scrubber removes identifying metadata from an attachment before it is
// sealed.
type Scrubber interface {
	Scrub(a Attachment) (Attachment, error)
}

// formats exiftool can rewrite; anything else is passed through untouched
var scrubbableTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/tiff":      true,
	"image/webp":      true,
	"image/heic":      true,
	"image/heif":      true,
	"application/pdf": true,
}

// Scrubbable reports whether attachments of this mimetype go through exiftool.
// Parameters such as charset are ignored.
func Scrubbable(mimeType string) bool {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return false
	}
	return scrubbableTypes[mediaType]
}

type ExifScrubber struct {
	exif *exiftool.Exiftool
}

func NewExifScrubber() (*ExifScrubber, error) {
	exif, err := exiftool.NewExiftool(exiftool.ClearFieldsBeforeWriting())
	if err != nil {
		return nil, fmt.Errorf("submission: start exiftool: %w", err)
	}
	return &ExifScrubber{exif: exif}, nil
}

func (s *ExifScrubber) Close() error {
	return s.exif.Close()
}

// Scrub works on a private temporary copy so the submitter's file is never
// modified.
func (s *ExifScrubber) Scrub(a Attachment) (Attachment, error) {
	if !Scrubbable(a.MimeType) {
		return a, nil
	}

	dir, err := os.MkdirTemp("", "sealedreport-scrub-*")
	if err != nil {
		return Attachment{}, err
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "attachment"+filepath.Ext(a.Filename))
	if err := os.WriteFile(path, a.Data, 0o600); err != nil {
		return Attachment{}, err
	}

	before := s.exif.ExtractMetadata(path)
	tags := 0
	if len(before) == 1 && before[0].Err == nil {
		tags = len(before[0].Fields)
	}

	metadata := []exiftool.FileMetadata{{File: path, Fields: map[string]interface{}{}}}
	s.exif.WriteMetadata(metadata)
	if metadata[0].Err != nil {
		return Attachment{}, fmt.Errorf("submission: scrub metadata: %w", metadata[0].Err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Attachment{}, err
	}
	log.Debug().
		Str("mimetype", a.MimeType).
		Int("tags_before", tags).
		Int("size_before", len(a.Data)).
		Int("size_after", len(data)).
		Msg("attachment metadata scrubbed")

	a.Data = data
	return a, nil
}
