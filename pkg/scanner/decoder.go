package scanner

import (
	"image"

	"github.com/makiuchi-d/gozxing"
	zxqrcode "github.com/makiuchi-d/gozxing/qrcode"
)

// ZXingDecoder decodes QR codes out of raw frames. A fresh reader per decode
// keeps the type goroutine-safe; gozxing readers carry mutable decode state.
type ZXingDecoder struct{}

func NewZXingDecoder() *ZXingDecoder {
	return &ZXingDecoder{}
}

func (d *ZXingDecoder) Decode(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", ErrNoCode
	}

	result, err := zxqrcode.NewQRCodeReader().Decode(bmp, nil)
	if err != nil {
		return "", ErrNoCode
	}
	return result.GetText(), nil
}
