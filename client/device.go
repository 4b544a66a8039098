package client

import (
	"github.com/weftgl/weft/engine/atlas"
	"github.com/weftgl/weft/engine/glhf"
)

// GLDevice backs atlas textures with glhf. Atlas textures sample with
// linear filtering so zoomed-out graphs stay smooth.
type GLDevice struct{}

func (GLDevice) CreateTexture(width, height int) atlas.Texture {
	return glhf.NewTexture(width, height, true, nil)
}
