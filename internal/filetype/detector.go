package filetype

import (
	"errors"
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"
)

// PDFMIME is the only type the analyzer accepts.
const PDFMIME = "application/pdf"

// ErrUnsupportedType is returned when an upload is not a PDF.
var ErrUnsupportedType = errors.New("unsupported file type")

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	Supported   bool
	Description string
}

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect detects the actual file type using magic bytes, not filename
func (d *Detector) Detect(filePath string) (*FileTypeInfo, error) {
	mtype, err := mimetype.DetectFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}

	log.Debug().Str("mime", mtype.String()).Str("ext", mtype.Extension()).Str("file", filePath).Msg("detected file type")

	info := &FileTypeInfo{
		MIMEType:  mtype.String(),
		Extension: mtype.Extension(),
	}
	if mtype.Is(PDFMIME) {
		info.Supported = true
		info.Description = "PDF document"
	} else {
		info.Description = fmt.Sprintf("Unsupported file type: %s", info.MIMEType)
	}
	return info, nil
}

// RequirePDF returns ErrUnsupportedType unless filePath sniffs as a PDF.
func (d *Detector) RequirePDF(filePath string) error {
	info, err := d.Detect(filePath)
	if err != nil {
		return err
	}
	if !info.Supported {
		return fmt.Errorf("%w: %s", ErrUnsupportedType, info.MIMEType)
	}
	return nil
}

// Validate parses the document structure with pdfcpu and returns its page count.
// It catches damaged files before any page is rendered.
func (d *Detector) Validate(filePath string) (int, error) {
	n, err := api.PageCountFile(filePath)
	if err != nil {
		return 0, fmt.Errorf("pdf page count failed: %w", err)
	}
	return n, nil
}
