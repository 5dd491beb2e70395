// Package barcode finds product codes in photos.
package barcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"strings"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// maxPixels guards against decompression bombs.
const maxPixels = 40_000_000

var errNoCode = errors.New("no barcode found")

// Decoder implements nutrilog.BarcodeDecoder. Retail codes (EAN/UPC) are
// tried before Code 128 and QR; the first reader that finds a code wins.
type Decoder struct {
	readers []namedReader
	hints   map[gozxing.DecodeHintType]interface{}
}

type namedReader struct {
	name   string
	reader func() gozxing.Reader
}

func NewDecoder() *Decoder {
	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	return &Decoder{
		hints: hints,
		readers: []namedReader{
			{"upc_ean", func() gozxing.Reader { return oned.NewMultiFormatUPCEANReader(hints) }},
			{"code128", func() gozxing.Reader { return oned.NewCode128Reader() }},
			{"qr", func() gozxing.Reader { return qrcode.NewQRCodeReader() }},
		},
	}
}

type decodeResult struct {
	code string
	ok   bool
}

// DecodeBarcode returns the first code found in image. Unreadable or corrupt
// images, and a cancelled context, are all reported as not found.
func (d *Decoder) DecodeBarcode(ctx context.Context, img []byte) (string, bool) {
	if len(img) == 0 || ctx.Err() != nil {
		return "", false
	}

	done := make(chan decodeResult, 1)
	go func() {
		code, err := d.decode(img)
		if err != nil {
			slog.Info("BARCODE: No code found", "error", err)
			done <- decodeResult{}
			return
		}
		done <- decodeResult{code: code, ok: true}
	}()

	select {
	case r := <-done:
		return r.code, r.ok
	case <-ctx.Done():
		slog.Warn("BARCODE: Decode abandoned", "error", ctx.Err())
		return "", false
	}
}

func (d *Decoder) decode(data []byte) (code string, err error) {
	defer func() {
		if r := recover(); r != nil {
			code, err = "", fmt.Errorf("decoder panic: %v", r)
		}
	}()

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("unrecognized image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxPixels {
		return "", fmt.Errorf("image dimensions %dx%d out of range", cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("binarize image: %w", err)
	}

	var errs []error
	for _, nr := range d.readers {
		res, err := nr.reader().Decode(bmp, d.hints)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", nr.name, err))
			continue
		}
		text := strings.TrimSpace(res.GetText())
		if text == "" {
			continue
		}
		slog.Info("BARCODE: Code found", "reader", nr.name, "format", res.GetBarcodeFormat().String())
		return text, nil
	}

	return "", errors.Join(append(errs, errNoCode)...)
}
