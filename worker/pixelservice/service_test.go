package pixelservice

import (
	"math"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/nci/evalpix/processor"
	"github.com/nci/evalpix/utils"
	"golang.org/x/net/context"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func builtinScripts(t *testing.T) processor.ScriptSet {
	scripts, err := processor.CompileScripts(map[string]*utils.Config{"": utils.BuiltinScripts()})
	if err != nil {
		t.Fatalf("failed to compile builtin scripts: %v", err)
	}
	return scripts
}

func startServer(t *testing.T, srv *Server) *Client {
	lis := bufconn.Listen(1024 * 1024)
	s := grpc.NewServer()
	RegisterPixelServer(s, srv)
	go s.Serve(lis)
	t.Cleanup(s.Stop)

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, addr string) (net.Conn, error) {
			return lis.Dial()
		}),
		grpc.WithInsecure())
	if err != nil {
		t.Fatalf("failed to dial bufnet: %v", err)
	}
	c := NewClient(conn)
	t.Cleanup(func() { c.Close() })
	return c
}

func ndviTile() *processor.BandTile {
	return &processor.BandTile{
		Script:     "ndvi-color",
		Collection: "sentinel2",
		Width:      2,
		Height:     2,
		Bands: map[string][]float32{
			"B08": {0.5, 0.1, 0.5, float32(math.NaN())},
			"B04": {0.1, 0.5, 0.1, 0.2},
		},
		DataMask:  []float32{1, 1, 0, 0},
		TimeStamp: time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestCodecRoundTrip(t *testing.T) {
	in := ndviTile()
	msg, err := EncodeBandTile(in)
	if err != nil {
		t.Fatalf("failed to encode: %v", err)
	}
	out, err := DecodeBandTile(msg)
	if err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if diff := cmp.Diff(in, out, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("band tile mismatch (-want +got):\n%s", diff)
	}

	if _, err := unpackFloat32("AAA="); err == nil {
		t.Errorf("misaligned raster accepted")
	}
}

func TestEvaluate(t *testing.T) {
	c := startServer(t, NewServer(builtinScripts(t), 2, 2, nil, false))

	out, kpi, err := c.EvaluateTile(context.Background(), ndviTile())
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}

	if out.Script != "ndvi-color" || out.Bands != 3 || out.Collection != "sentinel2" {
		t.Errorf("unexpected tile header %+v", out)
	}
	if diff := cmp.Diff([]float32{0, 0, 1}, out.Pixel(0, 0)); diff != "" {
		t.Errorf("pixel (0, 0) mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float32{1, 1, 1}, out.Pixel(1, 0)); diff != "" {
		t.Errorf("pixel (1, 0) mismatch (-want +got):\n%s", diff)
	}
	for _, p := range [][]float32{out.Pixel(0, 1), out.Pixel(1, 1)} {
		if diff := cmp.Diff([]float32{0, 0, 0}, p); diff != "" {
			t.Errorf("masked pixel mismatch (-want +got):\n%s", diff)
		}
	}
	if diff := cmp.Diff([]bool{true, true, false, false}, out.Valid); diff != "" {
		t.Errorf("validity mismatch (-want +got):\n%s", diff)
	}
	want := []processor.BandSemantic{processor.ChannelBand, processor.ChannelBand, processor.ChannelBand}
	if diff := cmp.Diff(want, out.Layout); diff != "" {
		t.Errorf("layout mismatch (-want +got):\n%s", diff)
	}

	if kpi == nil || kpi.Count != 2 || kpi.Masked != 2 {
		t.Errorf("unexpected kpi %+v", kpi)
	}
}

func TestEvaluateErrors(t *testing.T) {
	c := startServer(t, NewServer(builtinScripts(t), 1, 1, nil, false))

	tile := ndviTile()
	tile.Script = "evi"
	_, _, err := c.EvaluateTile(context.Background(), tile)
	if status.Code(err) != codes.NotFound {
		t.Errorf("unknown script gave %v", err)
	}

	tile = ndviTile()
	delete(tile.Bands, "B04")
	_, _, err = c.EvaluateTile(context.Background(), tile)
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("missing band gave %v", err)
	}
}

func TestScriptNames(t *testing.T) {
	srv := NewServer(builtinScripts(t), 1, 1, nil, false)
	c := startServer(t, srv)

	names, err := c.ScriptNames(context.Background())
	if err != nil {
		t.Fatalf("failed to list scripts: %v", err)
	}
	if diff := cmp.Diff([]string{"ndsi", "ndvi", "ndvi-color"}, names); diff != "" {
		t.Errorf("script names mismatch (-want +got):\n%s", diff)
	}

	scripts := builtinScripts(t)
	delete(scripts, "ndsi")
	srv.SetScripts(scripts)
	names, _ = c.ScriptNames(context.Background())
	if len(names) != 2 {
		t.Errorf("reloaded scripts not served: %v", names)
	}
}
