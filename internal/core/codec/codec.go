// Package codec is the boundary to the word-processing file format. The
// enrichment pipeline treats it as a black box: bytes in, plain text and
// embedded images out; a layout plan in, document bytes out.
package codec

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path"
	"strings"

	"code.sajari.com/docconv"

	"github.com/kelechi-nwosu/enrichd/internal/models"
)

// Codec converts between raw document bytes and the structured text model.
type Codec interface {
	Parse(data []byte, fileName string) (text string, images []models.ImageData, err error)
	Build(blocks []Block) ([]byte, error)
}

// DocconvCodec implements Codec with sajari/docconv for text extraction and
// a minimal OOXML writer for the build direction.
type DocconvCodec struct {
	useOCR bool
}

func NewDocconvCodec() *DocconvCodec {
	return &DocconvCodec{}
}

var _ Codec = (*DocconvCodec)(nil)

// Parse extracts plain text and any embedded media. Image extraction only
// applies to zip-packaged formats; other formats yield text only.
func (c *DocconvCodec) Parse(data []byte, fileName string) (string, []models.ImageData, error) {
	mimeType := docconv.MimeTypeByExtension(fileName)

	res, err := docconv.Convert(bytes.NewReader(data), mimeType, c.useOCR)
	if err != nil {
		return "", nil, fmt.Errorf("docconv: extract %q: %w", fileName, err)
	}

	images := extractZipMedia(data)
	return res.Body, images, nil
}

// extractZipMedia pulls embedded images out of an OOXML package. A non-zip
// payload simply returns no images.
func extractZipMedia(data []byte) []models.ImageData {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil
	}

	var images []models.ImageData
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, "word/media/") || f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			continue
		}
		var buf bytes.Buffer
		_, copyErr := buf.ReadFrom(rc)
		rc.Close()
		if copyErr != nil {
			continue
		}
		images = append(images, models.ImageData{
			Name:  path.Base(f.Name),
			Bytes: buf.Bytes(),
		})
	}
	return images
}
