package scanning

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	return img
}

var _ = Describe("Converter", func() {
	var (
		converter   *Converter
		data        []byte
		contentType string
		pages       []Page
		err         error
	)

	BeforeEach(func() {
		converter = NewConverter(400)
	})

	JustBeforeEach(func() {
		pages, err = converter.Pages(data, contentType)
	})

	When("converting a large JPEG", func() {
		BeforeEach(func() {
			var buf bytes.Buffer
			Expect(jpeg.Encode(&buf, testImage(800, 200), nil)).To(Succeed())
			data = buf.Bytes()
			contentType = "image/jpeg"
		})

		It("should return a single page", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(pages).To(HaveLen(1))
			Expect(pages[0].Number).To(Equal(1))
		})

		It("should encode the page as a resized PNG", func() {
			img, format, err := image.Decode(bytes.NewReader(pages[0].Image))
			Expect(err).NotTo(HaveOccurred())
			Expect(format).To(Equal("png"))
			Expect(img.Bounds().Dx()).To(Equal(400))
			Expect(img.Bounds().Dy()).To(Equal(100))
		})
	})

	When("converting a small PNG with a tall aspect", func() {
		BeforeEach(func() {
			converter.MaxDimension = 50
			var buf bytes.Buffer
			Expect(png.Encode(&buf, testImage(20, 100))).To(Succeed())
			data = buf.Bytes()
			contentType = ""
		})

		It("should bound the height", func() {
			Expect(err).NotTo(HaveOccurred())
			img, _, err := image.Decode(bytes.NewReader(pages[0].Image))
			Expect(err).NotTo(HaveOccurred())
			Expect(img.Bounds().Dy()).To(Equal(50))
			Expect(img.Bounds().Dx()).To(Equal(10))
		})
	})

	When("the image is within bounds and enhancement is off", func() {
		BeforeEach(func() {
			converter.Enhance = false
			var buf bytes.Buffer
			Expect(png.Encode(&buf, testImage(30, 30))).To(Succeed())
			data = buf.Bytes()
			contentType = "image/png"
		})

		It("should keep the original size", func() {
			img, _, err := image.Decode(bytes.NewReader(pages[0].Image))
			Expect(err).NotTo(HaveOccurred())
			Expect(img.Bounds().Dx()).To(Equal(30))
		})
	})

	When("the data is not an image", func() {
		BeforeEach(func() {
			data = []byte("plain text")
			contentType = "image/jpeg"
		})

		It("should return an unsupported format error", func() {
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("unsupported image format"))
		})
	})
})

var _ = Describe("format detection", func() {
	It("should recognize HEIC magic bytes", func() {
		data := append([]byte{0, 0, 0, 24}, []byte("ftypheic0000")...)
		Expect(isHEICFormat(data)).To(BeTrue())
		Expect(isHEICFormat([]byte("short"))).To(BeFalse())
	})

	It("should recognize HEIC MIME types", func() {
		Expect(isHEICMimeType(" Image/HEIF ")).To(BeTrue())
		Expect(isHEICMimeType("image/png")).To(BeFalse())
	})

	It("should recognize PDF headers", func() {
		Expect(isPDF([]byte("%PDF-1.7\n"))).To(BeTrue())
		Expect(isPDF([]byte("PK"))).To(BeFalse())
	})
})
