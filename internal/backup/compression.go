package backup

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// zstdMagic prefixes every zstd frame.
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// CompressionOptions configures compression behavior
type CompressionOptions struct {
	// Minimum size in bytes before compressing
	MinSize int
	// File extensions to skip compression for
	SkipExtensions []string
}

// DefaultCompressionOptions skips small files and formats that are already compressed.
func DefaultCompressionOptions() CompressionOptions {
	return CompressionOptions{
		MinSize: 1024,
		SkipExtensions: []string{
			".zip", ".gz", ".zst", ".xz", ".bz2",
			".png", ".jpg", ".jpeg", ".gif", ".webp",
			".mp3", ".mp4", ".avi", ".mkv",
			".pdf", ".docx", ".xlsx",
		},
	}
}

// codec compresses backup payloads. EncodeAll and DecodeAll are safe for
// concurrent use, so one encoder and one decoder serve every caller.
type codec struct {
	opts CompressionOptions
	skip map[string]bool
	enc  *zstd.Encoder
	dec  *zstd.Decoder
}

func newCodec(opts CompressionOptions) (*codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("creating encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("creating decoder: %w", err)
	}

	skip := make(map[string]bool, len(opts.SkipExtensions))
	for _, ext := range opts.SkipExtensions {
		skip[strings.ToLower(ext)] = true
	}

	return &codec{opts: opts, skip: skip, enc: enc, dec: dec}, nil
}

// shouldCompress determines if content of the given size at path is worth compressing.
func (c *codec) shouldCompress(path string, size int) bool {
	if size < c.opts.MinSize {
		return false
	}
	return !c.skip[strings.ToLower(filepath.Ext(path))]
}

func (c *codec) compress(content []byte) []byte {
	return c.enc.EncodeAll(content, make([]byte, 0, len(content)/2))
}

func (c *codec) decompress(content []byte) ([]byte, error) {
	if len(content) < len(zstdMagic) || !bytes.Equal(content[:len(zstdMagic)], zstdMagic) {
		return nil, fmt.Errorf("not a zstd frame")
	}
	out, err := c.dec.DecodeAll(content, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing: %w", err)
	}
	return out, nil
}

func (c *codec) close() {
	_ = c.enc.Close()
	c.dec.Close()
}
