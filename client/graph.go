package client

import (
	"fmt"
	"image"
	"image/color"
	_ "image/png"
	"math"
	"os"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/weftgl/weft/engine/batch"
	"github.com/weftgl/weft/engine/util"
)

// Node is one graph vertex with the handful of style fields the demo render
// types key on.
type Node struct {
	ID    uuid.UUID
	X, Y  float64
	W, H  float64
	Color color.NRGBA
	Label string
	// Image optionally names a PNG drawn as the node background.
	Image string
	// LabelAngle rotates the label quad around the node center.
	LabelAngle float64
}

// Edge connects two nodes and satisfies batch.EdgeStyle.
type Edge struct {
	Source, Target *Node
	Width          float32
	Color          [3]uint8
	Opacity        float32
	Curve          batch.CurveStyle
	SourceArrow    bool
	TargetArrow    bool
	ArrowColor     [3]uint8
}

func (e *Edge) Endpoints() (float32, float32, float32, float32) {
	return float32(e.Source.X), float32(e.Source.Y), float32(e.Target.X), float32(e.Target.Y)
}

func (e *Edge) LineWidth() float32           { return e.Width }
func (e *Edge) LineColor() [3]uint8          { return e.Color }
func (e *Edge) LineOpacity() float32         { return e.Opacity }
func (e *Edge) CurveStyle() batch.CurveStyle { return e.Curve }
func (e *Edge) ArrowScale() float32          { return 1 }

func (e *Edge) Arrow(end batch.ArrowEnd) (batch.ArrowSpec, bool) {
	var enabled bool
	var at, other *Node
	if end == batch.SourceEnd {
		enabled, at, other = e.SourceArrow, e.Source, e.Target
	} else {
		enabled, at, other = e.TargetArrow, e.Target, e.Source
	}
	if !enabled {
		return batch.ArrowSpec{}, false
	}
	angle := math.Atan2(at.Y-other.Y, at.X-other.X)
	return batch.ArrowSpec{
		X:       float32(at.X),
		Y:       float32(at.Y),
		Angle:   float32(angle),
		Color:   e.ArrowColor,
		Opacity: e.Opacity,
	}, true
}

// Graph is the demo scene.
type Graph struct {
	Nodes []*Node
	Edges []*Edge
}

// DemoGraph builds a ring of n labelled nodes with n arrowed edges, enough
// to fill a few atlas rows. The edges overflow an edge batch only when the
// configured batch size is below n.
func DemoGraph(n int) *Graph {
	g := &Graph{}
	radius := 300.0
	for i := 0; i < n; i++ {
		angle := 2 * math.Pi * float64(i) / float64(n)
		g.Nodes = append(g.Nodes, &Node{
			ID:    uuid.New(),
			X:     radius * math.Cos(angle),
			Y:     radius * math.Sin(angle),
			W:     40,
			H:     40,
			Color: color.NRGBA{R: uint8(60 + i*7%180), G: 90, B: 200, A: 255},
			Label: fmt.Sprintf("node-%d", i),
		})
	}
	for i := 0; i < n; i++ {
		g.Edges = append(g.Edges, &Edge{
			Source:      g.Nodes[i],
			Target:      g.Nodes[(i+1)%n],
			Width:       2,
			Color:       [3]uint8{40, 40, 40},
			Opacity:     0.8,
			TargetArrow: true,
			ArrowColor:  [3]uint8{160, 40, 40},
		})
	}
	return g
}

// imageCache bounds decoded node background images.
type imageCache struct {
	cache *lru.Cache[string, image.Image]
}

func newImageCache(size int) *imageCache {
	c, _ := lru.New[string, image.Image](size)
	return &imageCache{cache: c}
}

// Get decodes the PNG at path, memoising the result. Failures return nil
// and the node falls back to its fill color.
func (ic *imageCache) Get(path string) image.Image {
	if img, ok := ic.cache.Get(path); ok {
		return img
	}
	f, err := os.Open(path)
	if err != nil {
		util.LogTextureError("node image open failed", "path", path, "err", err)
		return nil
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		util.LogTextureError("node image decode failed", "path", path, "err", err)
		return nil
	}
	ic.cache.Add(path, img)
	return img
}
