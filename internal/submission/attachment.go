package submission

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/mirzahilmi/sealedreport/internal/common/constant"
)

var ErrAttachmentTooLarge = errors.New("submission: attachment exceeds size limit")

// LoadAttachment reads the file at path in full; sealing needs the whole
// plaintext in memory anyway.
func LoadAttachment(path string) (Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Attachment{}, err
	}
	if info.IsDir() {
		return Attachment{}, fmt.Errorf("submission: %s is a directory", path)
	}
	if info.Size() > constant.MAX_ATTACHMENT_BYTES {
		return Attachment{}, fmt.Errorf("%w: %d > %d bytes", ErrAttachmentTooLarge, info.Size(), constant.MAX_ATTACHMENT_BYTES)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Attachment{}, err
	}
	return Attachment{
		Filename: filepath.Base(path),
		MimeType: detectMimeType(path, data),
		Data:     data,
	}, nil
}

func detectMimeType(path string, data []byte) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); t != "" {
		mediaType, _, err := mime.ParseMediaType(t)
		if err == nil {
			return mediaType
		}
	}
	mediaType, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mediaType
}
