package files

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"math"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/ebogdum/vizgate/core/log"
	"github.com/ebogdum/vizgate/metrics"
)

const (
	// DefaultCompressThreshold is the size above which images are re-encoded
	DefaultCompressThreshold int64 = 2 << 20
	// DefaultMinDecrease is the smallest size decrease, in percent, worth another pass
	DefaultMinDecrease = 10.0
	// DefaultQuality is the JPEG quality used for each pass
	DefaultQuality = 75
)

// CompressResult summarizes a compression run
type CompressResult struct {
	OriginalSize int64
	FinalSize    int64
	Passes       int
	// Interrupted is set when a pass saved less than the minimum decrease
	Interrupted bool
}

// Compressor repeatedly re-encodes an image in place until it fits under Threshold
type Compressor struct {
	Threshold   int64
	MinDecrease float64
	Quality     int

	// Decode and Encode default to the registered image decoders and JPEG
	Decode func(r io.Reader) (image.Image, error)
	Encode func(w io.Writer, img image.Image) error

	logger *zap.Logger
}

// NewCompressor creates a compressor with JPEG encoding at quality
func NewCompressor(threshold int64, minDecrease float64, quality int, logger *zap.Logger) *Compressor {
	if threshold <= 0 {
		threshold = DefaultCompressThreshold
	}
	if minDecrease <= 0 {
		minDecrease = DefaultMinDecrease
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &Compressor{
		Threshold:   threshold,
		MinDecrease: minDecrease,
		Quality:     quality,
		logger:      logger,
	}
}

// Compress re-encodes the image at path while it is larger than Threshold,
// stopping early once a pass shrinks the file by less than MinDecrease percent.
func (c *Compressor) Compress(path string) (CompressResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return CompressResult{}, fmt.Errorf("failed to stat image: %w", err)
	}

	res := CompressResult{OriginalSize: info.Size(), FinalSize: info.Size()}
	defer func() { metrics.CompressionPasses.Observe(float64(res.Passes)) }()

	size := info.Size()
	for size > c.Threshold {
		newSize, err := c.pass(path)
		if err != nil {
			return res, err
		}
		res.Passes++
		res.FinalSize = newSize

		rate := CompressedRate(size, newSize)
		c.logger.Debug("Image compression pass",
			log.Path(path), zap.Int64("from", size), zap.Int64("to", newSize), zap.Float64("rate", rate))

		if 100-rate < c.MinDecrease {
			c.logger.Info("Stopping image compression, pass saved too little",
				log.Path(path), zap.Float64("rate", rate), zap.Int64("size", newSize))
			res.Interrupted = true
			break
		}
		size = newSize
	}

	return res, nil
}

// pass decodes the current file, flattens it onto white and writes it back
func (c *Compressor) pass(path string) (int64, error) {
	src, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open image: %w", err)
	}
	img, err := c.decode(src)
	src.Close()
	if err != nil {
		return 0, fmt.Errorf("failed to decode image: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".compress-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary image: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := c.encode(tmp, flatten(img)); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("failed to encode image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to write image: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("failed to replace image: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat image: %w", err)
	}
	return info.Size(), nil
}

func (c *Compressor) decode(r io.Reader) (image.Image, error) {
	if c.Decode != nil {
		return c.Decode(r)
	}
	img, _, err := image.Decode(r)
	return img, err
}

func (c *Compressor) encode(w io.Writer, img image.Image) error {
	if c.Encode != nil {
		return c.Encode(w, img)
	}
	return jpeg.Encode(w, img, &jpeg.Options{Quality: c.Quality})
}

// flatten draws img onto an opaque white canvas of the same size with a
// smooth resampling filter, dropping any alpha channel.
func flatten(img image.Image) image.Image {
	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// CompressedRate returns newSize/oldSize rounded to three decimals, as a percentage
func CompressedRate(oldSize, newSize int64) float64 {
	if oldSize <= 0 {
		return 0
	}
	return math.Round(float64(newSize)/float64(oldSize)*1000) / 10
}
