package client

import (
	"fmt"

	"github.com/faiface/mainthread"
	"github.com/go-gl/gl/v3.3-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/weftgl/weft/engine/atlas"
	"github.com/weftgl/weft/engine/batch"
	"github.com/weftgl/weft/engine/config"
	"github.com/weftgl/weft/engine/util"
)

// App is the demo graph viewer: one window, one atlas manager, one edge
// batcher, a ring graph to look at.
type App struct {
	cfg    config.Config
	window *glfw.Window

	width, height int

	manager *atlas.Manager
	edges   *batch.EdgeBatcher
	device  GLDevice

	graph *Graph

	panX, panY float64
	zoom       float64
}

// NewApp wires the renderer against the configuration. Call Run from the
// main goroutine.
func NewApp(cfg config.Config) *App {
	return &App{
		cfg:    cfg,
		width:  1024,
		height: 768,
		zoom:   1,
	}
}

// Run opens the window and blocks until it closes.
func (a *App) Run() error {
	var runErr error
	mainthread.Run(func() {
		mainthread.Call(func() {
			runErr = a.init()
		})
		if runErr != nil {
			return
		}
		defer mainthread.Call(a.terminate)
		for {
			var done bool
			mainthread.Call(func() {
				done = a.window.ShouldClose()
				if !done {
					a.drawFrame()
					a.window.SwapBuffers()
					glfw.PollEvents()
				}
			})
			if done {
				return
			}
		}
	})
	return runErr
}

func (a *App) init() error {
	if err := glfw.Init(); err != nil {
		return errors.Wrap(err, "init glfw")
	}
	glfw.WindowHint(glfw.ContextVersionMajor, 3)
	glfw.WindowHint(glfw.ContextVersionMinor, 3)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)

	window, err := glfw.CreateWindow(a.width, a.height, "weft", nil, nil)
	if err != nil {
		return errors.Wrap(err, "create window")
	}
	a.window = window
	window.MakeContextCurrent()

	if err := gl.Init(); err != nil {
		return errors.Wrap(err, "init gl")
	}
	gl.Enable(gl.BLEND)
	// Premultiplied alpha, matching the instance color packing.
	gl.BlendFunc(gl.ONE, gl.ONE_MINUS_SRC_ALPHA)
	gl.Disable(gl.DEPTH_TEST)

	a.manager = atlas.NewManager(a.cfg.TexSize, a.cfg.TexPerBatch, nil)
	a.manager.AddAtlasCollection(collectionNodes, atlas.CollectionOpts{TexRows: a.cfg.TexRows})
	a.manager.AddAtlasCollection(collectionLabels, atlas.CollectionOpts{TexRows: a.cfg.TexRows})
	if err := a.manager.AddRenderType(typeNodeBody, &nodeBodyType{images: newImageCache(64)}); err != nil {
		return err
	}
	if err := a.manager.AddRenderType(typeNodeLabel, &nodeLabelType{}); err != nil {
		return err
	}

	backend, err := batch.NewGLBackend(a.cfg.BatchSize)
	if err != nil {
		return err
	}
	bg := [3]float32{float32(a.cfg.BGColor[0]), float32(a.cfg.BGColor[1]), float32(a.cfg.BGColor[2])}
	a.edges = batch.NewEdgeBatcher(backend, a.cfg.BatchSize, bg)

	a.graph = DemoGraph(48)

	window.SetScrollCallback(func(_ *glfw.Window, _, yoff float64) {
		a.zoom *= 1 + yoff*0.1
		if a.zoom < 0.05 {
			a.zoom = 0.05
		}
	})
	window.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if action != glfw.Press && action != glfw.Repeat {
			return
		}
		const step = 20
		switch key {
		case glfw.KeyLeft:
			a.panX += step
		case glfw.KeyRight:
			a.panX -= step
		case glfw.KeyUp:
			a.panY += step
		case glfw.KeyDown:
			a.panY -= step
		case glfw.KeyG:
			a.manager.GC()
		case glfw.KeyEscape:
			a.window.SetShouldClose(true)
		}
	})

	util.Logger().Info("weft started", "nodes", len(a.graph.Nodes), "edges", len(a.graph.Edges))
	return nil
}

func (a *App) terminate() {
	if a.window != nil {
		a.window.Destroy()
	}
	glfw.Terminate()
}

// panZoomMatrix maps world coordinates to clip space.
func (a *App) panZoomMatrix() mgl32.Mat3 {
	sx := float32(2 * a.zoom / float64(a.width))
	sy := float32(-2 * a.zoom / float64(a.height))
	return mgl32.Translate2D(float32(2*a.panX/float64(a.width)), float32(-2*a.panY/float64(a.height))).
		Mul3(mgl32.Scale2D(sx, sy))
}

func (a *App) drawFrame() {
	bg := a.cfg.BGColor
	gl.ClearColor(float32(bg[0]), float32(bg[1]), float32(bg[2]), 1)
	gl.Clear(gl.COLOR_BUFFER_BIT)

	panZoom := a.panZoomMatrix()

	// Edges are the only geometry drawn to the screen.
	a.edges.StartFrame(panZoom, batch.TargetScreen)
	a.edges.StartBatch()
	for i, e := range a.graph.Edges {
		a.edges.Draw(e, i)
	}
	a.edges.EndFrame()

	// Rasterize node bodies and labels into their atlases and make sure
	// the textures are resident. No node quad pass samples them here.
	a.manager.StartBatch()
	for _, n := range a.graph.Nodes {
		for _, typ := range []string{typeNodeBody, typeNodeLabel} {
			if !a.manager.CanAddToCurrentBatch(n, typ) {
				a.manager.StartBatch()
			}
			if _, ok := a.manager.AtlasInfo(n, typ); !ok {
				util.LogTextureDebug("atlas info miss", "type", typ)
			}
		}
	}
	for _, name := range []string{collectionNodes, collectionLabels} {
		if c, ok := a.manager.Collection(name); ok {
			for _, at := range c.Atlases() {
				at.BufferIfNeeded(a.device)
			}
		}
	}

	if err := gl.GetError(); err != gl.NO_ERROR {
		util.LogGLError(fmt.Sprintf("frame gl error: 0x%x", err))
	}
}
