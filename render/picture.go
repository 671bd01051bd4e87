package render

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/NeowayLabs/kmsflip/buffer"
)

// Picture draws a still image stretched over the whole buffer.
type Picture struct {
	src    image.Image
	scaler draw.Scaler
	// scaled copies of src, one per buffer size
	scaled map[image.Point]*image.RGBA
}

// LoadPicture decodes the image file at path.
func LoadPicture(path string) (*Picture, error) {
	reader, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	img, _, err := image.Decode(reader)
	if err != nil {
		return nil, fmt.Errorf("cannot decode %s: %w", path, err)
	}
	return NewPicture(img), nil
}

func NewPicture(img image.Image) *Picture {
	return &Picture{
		src:    img,
		scaler: draw.ApproxBiLinear,
		scaled: make(map[image.Point]*image.RGBA),
	}
}

func (p *Picture) Render(b *buffer.Buffer, frame uint64) error {
	if !canEncode(b.Format) {
		return fmt.Errorf("cannot render format %s", b.Format)
	}

	img := p.fit(int(b.Width), int(b.Height))
	bpp := int(b.Format.BPP() / 8)
	for y := 0; y < int(b.Height); y++ {
		row := b.Data[y*int(b.Pitch):]
		for x := 0; x < int(b.Width); x++ {
			c := img.RGBAAt(x, y)
			c.A = 0xff
			encode(b.Format, row[x*bpp:], c)
		}
	}
	return nil
}

func (p *Picture) fit(width, height int) *image.RGBA {
	size := image.Pt(width, height)
	if img, ok := p.scaled[size]; ok {
		return img
	}
	img := image.NewRGBA(image.Rectangle{Max: size})
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	p.scaler.Scale(img, img.Bounds(), p.src, p.src.Bounds(), draw.Over, nil)
	p.scaled[size] = img
	return img
}

func (p *Picture) Close() error {
	p.scaled = nil
	return nil
}
