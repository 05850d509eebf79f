package processor

import (
	"context"
	"fmt"
	"log"
	"sync"
)

const DefaultRowsPerBlock = 64

// TileProcessor evaluates a script over every pixel of incoming tiles.
// Row blocks of one tile run concurrently, bounded by ConcLevel.
type TileProcessor struct {
	Context      context.Context
	In           chan *BandTile
	Out          chan *PixelTile
	Error        chan error
	Scripts      ScriptSet
	ConcLevel    int
	RowsPerBlock int
}

func NewTileProcessor(ctx context.Context, scripts ScriptSet, concLevel int, errChan chan error) *TileProcessor {
	return &TileProcessor{
		Context:      ctx,
		In:           make(chan *BandTile, 100),
		Out:          make(chan *PixelTile, 100),
		Error:        errChan,
		Scripts:      scripts,
		ConcLevel:    concLevel,
		RowsPerBlock: DefaultRowsPerBlock,
	}
}

func (tp *TileProcessor) Run(verbose bool) {
	if verbose {
		defer log.Printf("tile processor done")
	}
	defer close(tp.Out)

	for tile := range tp.In {
		select {
		case <-tp.Context.Done():
			tp.Error <- fmt.Errorf("Tile processor context has been cancel: %v", tp.Context.Err())
			return
		default:
		}

		script, err := tp.Scripts.Lookup(tile.Script)
		if err != nil {
			tp.Error <- err
			return
		}

		out, err := ProcessTile(tp.Context, script.Processor, tile, tp.ConcLevel, tp.RowsPerBlock)
		if err != nil {
			tp.Error <- err
			return
		}
		if verbose {
			log.Printf("tile processor: %s %dx%d at (%d,%d)", script.Name, tile.Width, tile.Height, tile.OffX, tile.OffY)
		}
		tp.Out <- out
	}
}

// ProcessTile checks tile against p and then processes it in blocks of
// rowsPerBlock rows, at most concLevel at a time.
func ProcessTile(ctx context.Context, p *PixelProcessor, tile *BandTile, concLevel, rowsPerBlock int) (*PixelTile, error) {
	if err := tile.Check(p); err != nil {
		return nil, err
	}
	if rowsPerBlock < 1 {
		rowsPerBlock = DefaultRowsPerBlock
	}

	size := tile.Width * tile.Height
	out := &PixelTile{
		Script:     p.Name,
		Collection: tile.Collection,
		Height:     tile.Height,
		Width:      tile.Width,
		OffX:       tile.OffX,
		OffY:       tile.OffY,
		Bands:      p.Output.Bands,
		Layout:     p.Layout(),
		Data:       make([]float32, size*p.Output.Bands),
		Valid:      make([]bool, size),
		TimeStamp:  tile.TimeStamp,
		Footprint:  tile.Footprint,
	}

	var errOnce sync.Once
	var procErr error
	cLimiter := NewConcLimiter(concLevel)
	for row := 0; row < tile.Height; row += rowsPerBlock {
		if ctx.Err() != nil {
			break
		}
		end := row + rowsPerBlock
		if end > tile.Height {
			end = tile.Height
		}

		cLimiter.Increase()
		go func(start, end int) {
			defer cLimiter.Decrease()
			vec := make([]float64, p.Output.Bands)
			for i := start * tile.Width; i < end*tile.Width; i++ {
				state, err := p.ProcessInto(vec, tileSample{tile: tile, idx: i})
				if err != nil {
					errOnce.Do(func() { procErr = err })
					return
				}
				out.Valid[i] = state != StateInvalid
				for b, v := range vec {
					out.Data[i*p.Output.Bands+b] = float32(v)
				}
			}
		}(row, end)
	}
	cLimiter.Wait()

	if procErr != nil {
		return nil, procErr
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("Tile processing has been cancelled: %v", ctx.Err())
	}
	return out, nil
}
