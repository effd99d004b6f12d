package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"log/slog"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// Page is one rendered, preprocessed page of a document, encoded as PNG
type Page struct {
	Number int
	Image  []byte
}

// Converter turns uploaded documents into page images ready for the model
type Converter struct {
	// MaxDimension bounds the longest side of every page; 0 disables resizing
	MaxDimension int
	// DPI is the resolution PDF pages are rendered at
	DPI float64
	// Enhance applies sharpening, contrast and grayscale for faint scans
	Enhance bool
}

// NewConverter creates a Converter with settings suited to bill photos and scans
func NewConverter(maxDimension int) *Converter {
	return &Converter{
		MaxDimension: maxDimension,
		DPI:          200,
		Enhance:      true,
	}
}

// Pages splits a document into one image per page. PDFs yield every page,
// images yield a single page.
func (c *Converter) Pages(data []byte, contentType string) ([]Page, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	var images []image.Image
	if mimeType == "application/pdf" || isPDF(data) {
		rendered, err := c.renderPDF(data)
		if err != nil {
			return nil, fmt.Errorf("converting PDF to images: %w", err)
		}
		images = rendered
	} else {
		img, err := decodeImage(data, mimeType)
		if err != nil {
			return nil, fmt.Errorf("converting image: %w", err)
		}
		images = []image.Image{img}
	}

	pages := make([]Page, 0, len(images))
	for i, img := range images {
		encoded, err := c.encode(c.preprocess(img))
		if err != nil {
			return nil, fmt.Errorf("encoding page %d: %w", i+1, err)
		}
		pages = append(pages, Page{Number: i + 1, Image: encoded})
	}

	slog.Debug("Converted document", "content_type", mimeType, "pages", len(pages))
	return pages, nil
}

// renderPDF renders every page of a PDF
func (c *Converter) renderPDF(pdfData []byte) ([]image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	n := doc.NumPage()
	if n == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}

	images := make([]image.Image, 0, n)
	for i := 0; i < n; i++ {
		img, err := doc.ImageDPI(i, c.DPI)
		if err != nil {
			return nil, fmt.Errorf("rendering PDF page %d: %w", i+1, err)
		}
		images = append(images, img)
	}
	return images, nil
}

// preprocess resizes and enhances a page for OCR
func (c *Converter) preprocess(img image.Image) image.Image {
	bounds := img.Bounds()
	if c.MaxDimension > 0 && (bounds.Dx() > c.MaxDimension || bounds.Dy() > c.MaxDimension) {
		if bounds.Dx() >= bounds.Dy() {
			img = imaging.Resize(img, c.MaxDimension, 0, imaging.Lanczos)
		} else {
			img = imaging.Resize(img, 0, c.MaxDimension, imaging.Lanczos)
		}
	}

	if c.Enhance {
		img = imaging.Sharpen(img, 1.5)
		img = imaging.AdjustContrast(img, 25)
		img = imaging.Grayscale(img)
	}
	return img
}

func (c *Converter) encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeImage decodes JPEG, PNG, GIF and HEIC/HEIF images
func decodeImage(imageData []byte, mimeType string) (image.Image, error) {
	// Go's standard image package doesn't support HEIC (common on iPhones)
	if isHEICFormat(imageData) || isHEICMimeType(mimeType) {
		img, err := heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		if strings.Contains(err.Error(), "unknown format") {
			return nil, fmt.Errorf("unsupported image format. Supported formats: JPEG, PNG, GIF, HEIC, HEIF, PDF. Error: %w", err)
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

func isPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

// isHEICFormat checks if the image data is in HEIC/HEIF format
// HEIC files carry an ftyp box at offset 4 with a HEIC-family brand
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

// isHEICMimeType checks if the MIME type indicates HEIC/HEIF format
func isHEICMimeType(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}
