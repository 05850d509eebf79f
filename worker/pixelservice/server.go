package pixelservice

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/nci/evalpix/metrics"
	"github.com/nci/evalpix/processor"
	"golang.org/x/net/context"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// maxQueued bounds the requests waiting for a pool slot before new ones
// are refused.
const maxQueued = 400

// Server implements PixelServer over a set of compiled scripts. At most
// PoolSize tiles are evaluated at once, each using ConcLevel goroutines.
type Server struct {
	PoolSize  int
	ConcLevel int
	KPIBand   int
	Logger    metrics.Logger
	Verbose   bool

	mu      sync.RWMutex
	scripts processor.ScriptSet
	pool    chan struct{}
	queued  chan struct{}
}

func NewServer(scripts processor.ScriptSet, poolSize, concLevel int, logger metrics.Logger, verbose bool) *Server {
	if poolSize < 1 {
		poolSize = 1
	}
	return &Server{
		PoolSize:  poolSize,
		ConcLevel: concLevel,
		Logger:    logger,
		Verbose:   verbose,
		scripts:   scripts,
		pool:      make(chan struct{}, poolSize),
		queued:    make(chan struct{}, maxQueued),
	}
}

// SetScripts swaps the script set, e.g. after a config reload. Requests
// already running keep the set they started with.
func (s *Server) SetScripts(scripts processor.ScriptSet) {
	s.mu.Lock()
	s.scripts = scripts
	s.mu.Unlock()
}

func (s *Server) Scripts(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	s.mu.RLock()
	scripts := s.scripts
	s.mu.RUnlock()

	var names []interface{}
	for _, n := range scripts.Names() {
		names = append(names, n)
	}
	return structpb.NewStruct(map[string]interface{}{"scripts": names})
}

func (s *Server) acquire(ctx context.Context) error {
	select {
	case s.queued <- struct{}{}:
	default:
		return status.Error(codes.ResourceExhausted, "Pool TaskQueue is full")
	}
	defer func() { <-s.queued }()

	select {
	case s.pool <- struct{}{}:
		return nil
	case <-ctx.Done():
		return contextStatus(ctx.Err())
	}
}

func (s *Server) release() {
	<-s.pool
}

func contextStatus(err error) error {
	if err == context.DeadlineExceeded {
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Canceled, err.Error())
}

// statusError maps processing errors to gRPC codes.
func statusError(ctx context.Context, err error) error {
	var ce *processor.ConfigError
	switch {
	case errors.As(err, &ce):
		return status.Error(codes.InvalidArgument, err.Error())
	case ctx.Err() != nil:
		return contextStatus(ctx.Err())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func (s *Server) Evaluate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	metricsCollector := metrics.NewMetricsCollector(s.Logger)
	defer metricsCollector.Log()

	t0 := time.Now()
	metricsCollector.Info.ReqTime = t0.Format(time.RFC3339)
	metricsCollector.Info.Method = "rpc"
	defer func() { metricsCollector.Info.ReqDuration = time.Since(t0) }()
	metricsCollector.Info.RPC.NumCalls = 1
	metricsCollector.Info.RPC.BytesRecv = int64(proto.Size(in))

	if err := s.acquire(ctx); err != nil {
		metricsCollector.Fail(503, err)
		return nil, err
	}
	defer s.release()

	tile, err := DecodeBandTile(in)
	if err != nil {
		metricsCollector.Fail(400, err)
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	metricsCollector.AddScript(tile.Script)
	metricsCollector.Info.Pipeline.Footprint = tile.Footprint

	s.mu.RLock()
	scripts := s.scripts
	s.mu.RUnlock()

	script, err := scripts.Lookup(tile.Script)
	if err != nil {
		metricsCollector.Fail(404, err)
		return nil, status.Error(codes.NotFound, err.Error())
	}

	tp := time.Now()
	out, err := processor.ProcessTile(ctx, script.Processor, tile, s.ConcLevel, processor.DefaultRowsPerBlock)
	metricsCollector.Info.Pipeline.Duration = time.Since(tp)
	if err != nil {
		if s.Verbose {
			log.Printf("Evaluate %s: %v", tile.Script, err)
		}
		metricsCollector.Fail(500, err)
		return nil, statusError(ctx, err)
	}

	metricsCollector.Info.Pipeline.NumTiles = 1
	metricsCollector.Info.Pipeline.NumPixels = len(out.Valid)
	for _, v := range out.Valid {
		if !v {
			metricsCollector.Info.Pipeline.NumMasked++
		}
	}

	var kpi *processor.KPISummary
	if s.KPIBand < out.Bands {
		kpi, err = processor.ComputeKPI(out, s.KPIBand)
		if err != nil {
			metricsCollector.Fail(500, err)
			return nil, status.Error(codes.Internal, err.Error())
		}
	}

	res, err := EncodePixelTile(out, kpi)
	if err != nil {
		metricsCollector.Fail(500, err)
		return nil, status.Error(codes.Internal, err.Error())
	}
	metricsCollector.Info.RPC.BytesSent = int64(proto.Size(res))
	metricsCollector.Info.HTTPStatus = 200
	metricsCollector.Info.RPC.Duration = time.Since(t0)

	if s.Verbose {
		log.Printf("Evaluate %s %dx%d at (%d,%d) in %v", tile.Script, tile.Width, tile.Height, tile.OffX, tile.OffY, time.Since(t0))
	}
	return res, nil
}
