package tesseract

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
)

var blankPNG = func() []byte {
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}()
