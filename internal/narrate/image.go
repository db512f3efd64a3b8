package narrate

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"

	"golang.org/x/image/draw"
)

const (
	DefaultMaxImageEdge = 1024
	DefaultJPEGQuality  = 75
)

// EncodeImage loads a frame, scales it so its longest edge is at most maxEdge
// and re-encodes it as JPEG. maxEdge <= 0 disables resizing.
func EncodeImage(path string, maxEdge, quality int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening frame: %w", err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding frame %s: %w", path, err)
	}

	src = fitLongestEdge(src, maxEdge)

	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encoding frame %s: %w", path, err)
	}
	return buf.Bytes(), nil
}

func fitLongestEdge(src image.Image, maxEdge int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	longest := max(w, h)
	if maxEdge <= 0 || longest <= maxEdge {
		return src
	}
	nw := max(1, w*maxEdge/longest)
	nh := max(1, h*maxEdge/longest)
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// ImageDataURI encodes a frame for an image_url message part.
func ImageDataURI(path string, maxEdge, quality int) (string, error) {
	data, err := EncodeImage(path, maxEdge, quality)
	if err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data), nil
}
