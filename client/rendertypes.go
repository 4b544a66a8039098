package client

import (
	"fmt"
	"image/color"

	"github.com/weftgl/weft/engine/atlas"
	"github.com/weftgl/weft/engine/raster"
)

const (
	collectionNodes  = "nodes"
	collectionLabels = "labels"

	typeNodeBody  = "node-body"
	typeNodeLabel = "node-label"
)

// nodeBodyType rasterizes node backgrounds. Nodes sharing fill color, size
// and image share one atlas entry.
type nodeBodyType struct {
	images *imageCache
}

func (t *nodeBodyType) CollectionName() string { return collectionNodes }

func (t *nodeBodyType) Key(ele any) string {
	n := ele.(*Node)
	return fmt.Sprintf("body:%dx%d:%02x%02x%02x%02x:%s", int(n.W), int(n.H), n.Color.R, n.Color.G, n.Color.B, n.Color.A, n.Image)
}

func (t *nodeBodyType) ID(ele any) any {
	return ele.(*Node).ID
}

func (t *nodeBodyType) BoundingBox(ele any) atlas.BoundingBox {
	n := ele.(*Node)
	return atlas.BoundingBox{X1: n.X - n.W/2, Y1: n.Y - n.H/2, W: n.W, H: n.H}
}

func (t *nodeBodyType) DrawElement(c *raster.Canvas, ele any, bb atlas.BoundingBox) {
	n := ele.(*Node)
	c.FillRect(bb.X1, bb.Y1, bb.W, bb.H, n.Color)
	if n.Image != "" {
		if img := t.images.Get(n.Image); img != nil {
			sb := img.Bounds()
			c.DrawImage(img,
				float64(sb.Min.X), float64(sb.Min.Y), float64(sb.Dx()), float64(sb.Dy()),
				bb.X1, bb.Y1, bb.W, bb.H)
		}
	}
}

// nodeLabelType rasterizes label banners. Long labels produce entries wider
// than an atlas row tail and exercise the wrapped placement path.
type nodeLabelType struct{}

func (t *nodeLabelType) CollectionName() string { return collectionLabels }

func (t *nodeLabelType) Key(ele any) string {
	return "label:" + ele.(*Node).Label
}

func (t *nodeLabelType) ID(ele any) any {
	return ele.(*Node).ID
}

func (t *nodeLabelType) BoundingBox(ele any) atlas.BoundingBox {
	n := ele.(*Node)
	w := float64(8*len(n.Label) + 8)
	return atlas.BoundingBox{X1: n.X - w/2, Y1: n.Y + n.H/2 + 4, W: w, H: 16}
}

func (t *nodeLabelType) DrawElement(c *raster.Canvas, ele any, bb atlas.BoundingBox) {
	// Banner background with a simple tick per character; a text shaper
	// would slot in here.
	c.FillRect(bb.X1, bb.Y1, bb.W, bb.H, color.NRGBA{R: 245, G: 245, B: 245, A: 255})
	n := ele.(*Node)
	for i := range n.Label {
		c.FillRect(bb.X1+4+float64(i*8), bb.Y1+4, 6, 8, color.NRGBA{A: 255})
	}
}

func (t *nodeLabelType) Padding(ele any) float64 { return 2 }

func (t *nodeLabelType) Rotation(ele any) float64 {
	return ele.(*Node).LabelAngle
}

func (t *nodeLabelType) RotationPoint(ele any) (float64, float64) {
	n := ele.(*Node)
	return n.X, n.Y
}

func (t *nodeLabelType) RotationOffset(ele any) (float64, float64) {
	n := ele.(*Node)
	bb := t.BoundingBox(n)
	return bb.X1 - n.X, bb.Y1 - n.Y
}
