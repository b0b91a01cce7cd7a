package main

import (
	"fmt"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"

	"github.com/jwebster45206/tileworld/internal/client"
	"github.com/jwebster45206/tileworld/pkg/render"
)

const (
	defaultWidth  = 640
	defaultHeight = 480
)

// viewer is the ebiten.Game that shows the render loop's frames. Ebiten owns
// the repaint cadence, so Update steps the loop directly instead of reading
// from a ticker.
type viewer struct {
	loop  *render.Loop
	src   *client.StateSource
	start time.Time

	screen *ebiten.Image
	w, h   int
}

func newViewer(loop *render.Loop, src *client.StateSource) *viewer {
	return &viewer{loop: loop, src: src, start: time.Now(), w: defaultWidth, h: defaultHeight}
}

func (v *viewer) Update() error {
	v.loop.Step(time.Since(v.start))
	return nil
}

func (v *viewer) Draw(screen *ebiten.Image) {
	frame := v.loop.Latest()
	if frame == nil {
		ebitenutil.DebugPrint(screen, "Waiting for the world...")
		return
	}

	w, h := frame.Rect.Dx(), frame.Rect.Dy()
	if v.screen == nil || v.w != w || v.h != h {
		v.screen = ebiten.NewImage(w, h)
		v.w, v.h = w, h
	}
	v.screen.WritePixels(frame.Pix)
	screen.DrawImage(v.screen, nil)

	if gs := v.src.Snapshot(); gs != nil {
		ebitenutil.DebugPrint(screen, fmt.Sprintf("%s  turn %d  %.0f fps", gs.LocationName, gs.Turn, ebiten.ActualFPS()))
	}
}

func (v *viewer) Layout(_, _ int) (int, int) {
	return v.w, v.h
}
