package processor

import (
	"context"
	"sync"
)

type TilePipeline struct {
	Context   context.Context
	Error     chan error
	Scripts   ScriptSet
	ConcLevel int
	KPIBand   int
}

func InitTilePipeline(ctx context.Context, scripts ScriptSet, concLevel int, errChan chan error) *TilePipeline {
	return &TilePipeline{
		Context:   ctx,
		Error:     errChan,
		Scripts:   scripts,
		ConcLevel: concLevel,
	}
}

// Process wires tile evaluation into KPI aggregation. Both returned
// channels must be drained.
func (dp *TilePipeline) Process(tiles []*BandTile, verbose bool) (chan *PixelTile, chan *KPISummary) {
	tp := NewTileProcessor(dp.Context, dp.Scripts, dp.ConcLevel, dp.Error)
	go func() {
		defer close(tp.In)
		for _, t := range tiles {
			select {
			case tp.In <- t:
			case <-dp.Context.Done():
				return
			}
		}
	}()

	ka := NewKPIAggregator(dp.KPIBand, dp.Error)
	ka.In = tp.Out

	go tp.Run(verbose)
	go ka.Run(verbose)

	return ka.Out, ka.KPIs
}

type TileResult struct {
	Tiles []*PixelTile
	KPIs  []*KPISummary
}

// ProcessTiles runs the pipeline to completion, returning the first
// error raised by any stage.
func ProcessTiles(ctx context.Context, scripts ScriptSet, tiles []*BandTile, concLevel int, verbose bool) (*TileResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errChan := make(chan error, 100)
	dp := InitTilePipeline(ctx, scripts, concLevel, errChan)
	out, kpis := dp.Process(tiles, verbose)

	res := &TileResult{}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for k := range kpis {
			res.KPIs = append(res.KPIs, k)
		}
	}()

	for {
		select {
		case t, ok := <-out:
			if !ok {
				wg.Wait()
				select {
				case err := <-errChan:
					return nil, err
				default:
				}
				return res, nil
			}
			res.Tiles = append(res.Tiles, t)
		case err := <-errChan:
			cancel()
			for range out {
			}
			wg.Wait()
			return nil, err
		}
	}
}
