package pixelservice

import (
	"fmt"
	"log"
	"math/rand"

	"github.com/nci/evalpix/processor"
	"golang.org/x/net/context"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const DefaultMaxRecvMsgSize = 512 * 1024 * 1024

// Client evaluates tiles on one remote pixel server.
type Client struct {
	conn *grpc.ClientConn
	rpc  PixelClient
}

func Dial(address string, maxRecvMsgSize int) (*Client, error) {
	if maxRecvMsgSize <= 0 {
		maxRecvMsgSize = DefaultMaxRecvMsgSize
	}
	opts := []grpc.DialOption{
		grpc.WithInsecure(),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxRecvMsgSize)),
	}
	conn, err := grpc.Dial(address, opts...)
	if err != nil {
		return nil, err
	}
	return NewClient(conn), nil
}

// NewClient wraps an existing connection, which Close will close.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn, rpc: NewPixelClient(conn)}
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// EvaluateTile sends one tile and returns the processed tile and its
// summary.
func (c *Client) EvaluateTile(ctx context.Context, tile *processor.BandTile) (*processor.PixelTile, *processor.KPISummary, error) {
	req, err := EncodeBandTile(tile)
	if err != nil {
		return nil, nil, err
	}
	res, err := c.rpc.Evaluate(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	return DecodePixelTile(res)
}

// ScriptNames lists the scripts the server can evaluate.
func (c *Client) ScriptNames(ctx context.Context) ([]string, error) {
	res, err := c.rpc.Scripts(ctx, &structpb.Struct{})
	if err != nil {
		return nil, err
	}
	var names []string
	for _, v := range res.GetFields()["scripts"].GetListValue().GetValues() {
		names = append(names, v.GetStringValue())
	}
	return names, nil
}

// RemoteTileProcessor is the distributed counterpart of
// processor.TileProcessor: tiles are spread round robin over a shuffled
// set of worker nodes.
type RemoteTileProcessor struct {
	Context        context.Context
	In             chan *processor.BandTile
	Out            chan *processor.PixelTile
	KPIs           chan *processor.KPISummary
	Error          chan error
	Clients        []string
	MaxRecvMsgSize int
	ConcLimit      int
}

func NewRemoteTileProcessor(ctx context.Context, serverAddress []string, concLimit int, errChan chan error) *RemoteTileProcessor {
	return &RemoteTileProcessor{
		Context:        ctx,
		In:             make(chan *processor.BandTile, 100),
		Out:            make(chan *processor.PixelTile, 100),
		KPIs:           make(chan *processor.KPISummary, 100),
		Error:          errChan,
		Clients:        serverAddress,
		MaxRecvMsgSize: DefaultMaxRecvMsgSize,
		ConcLimit:      concLimit,
	}
}

func (rp *RemoteTileProcessor) Run(verbose bool) {
	if verbose {
		defer log.Printf("remote tile processor done")
	}
	defer close(rp.Out)
	defer close(rp.KPIs)

	clientIdx := rand.Perm(len(rp.Clients))
	var clients []*Client
	for _, ic := range clientIdx {
		c, err := Dial(rp.Clients[ic], rp.MaxRecvMsgSize)
		if err != nil {
			log.Printf("gRPC connection problem: %v", err)
			continue
		}
		defer c.Close()
		clients = append(clients, c)
	}

	if len(clients) == 0 {
		rp.sendError(fmt.Errorf("All gRPC servers offline"))
		for range rp.In {
		}
		return
	}

	concLimit := rp.ConcLimit
	if concLimit < 1 {
		concLimit = 1
	}
	cLimiter := processor.NewConcLimiter(concLimit * len(clients))
	iTile := 0
	for tile := range rp.In {
		select {
		case <-rp.Context.Done():
			cLimiter.Wait()
			return
		default:
		}

		cLimiter.Increase()
		go func(t *processor.BandTile, c *Client) {
			defer cLimiter.Decrease()
			out, kpi, err := c.EvaluateTile(rp.Context, t)
			if err != nil {
				rp.sendError(fmt.Errorf("tile at (%d,%d): %v", t.OffX, t.OffY, err))
				return
			}
			if kpi != nil {
				rp.KPIs <- kpi
			}
			rp.Out <- out
		}(tile, clients[iTile%len(clients)])
		iTile++
	}
	cLimiter.Wait()
}

func (rp *RemoteTileProcessor) sendError(err error) {
	select {
	case rp.Error <- err:
	default:
	}
}
