package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	proc "github.com/nci/evalpix/processor"
	"github.com/nci/evalpix/utils"
	pb "github.com/nci/evalpix/worker/pixelservice"
	"golang.org/x/crypto/ssh/terminal"
	"golang.org/x/net/context"
)

var passed string = "Passed"
var failed string = "Failed"

type scenario struct {
	name   string
	script string
	bands  map[string]float32
	mask   float32
	want   []float32
}

// Scenarios expected of a server running the built-in scripts.
var scenarios = []scenario{
	{"raw ndvi", "ndvi", map[string]float32{"B08": 0.5, "B04": 0.1}, 1, []float32{0.6667}},
	{"ndvi colour map", "ndvi-color", map[string]float32{"B08": 0.5, "B04": 0.1}, 1, []float32{0, 0, 1}},
	{"ndsi snow mask", "ndsi", map[string]float32{"B03": 0.5, "B11": 0.1}, 1, []float32{1}},
	{"masked pixel", "ndvi-color", map[string]float32{"B08": 0.5, "B04": 0.1}, 0, []float32{0, 0, 0}},
}

func singlePixel(script string, bands map[string]float32, mask float32) *proc.BandTile {
	t := &proc.BandTile{
		Script:    script,
		Width:     1,
		Height:    1,
		Bands:     map[string][]float32{},
		DataMask:  []float32{mask},
		TimeStamp: time.Now().UTC(),
	}
	for b, v := range bands {
		t.Bands[b] = []float32{v}
	}
	return t
}

func approxEqual(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(float64(a[i]-b[i])) > 1e-4 {
			return false
		}
	}
	return true
}

func Scripts(c *pb.Client) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	names, err := c.ScriptNames(ctx)
	if err != nil {
		fmt.Println(err)
		return false
	}
	served := map[string]bool{}
	for _, n := range names {
		served[n] = true
	}
	for _, s := range scenarios {
		if !served[s.script] {
			fmt.Printf("script %s not served ", s.script)
			return false
		}
	}
	return true
}

func Scenarios(c *pb.Client) bool {
	out := true
	for _, s := range scenarios {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		tile, _, err := c.EvaluateTile(ctx, singlePixel(s.script, s.bands, s.mask))
		cancel()
		if err != nil {
			fmt.Printf("\n  %s: %v", s.name, err)
			out = false
			continue
		}
		if got := tile.Pixel(0, 0); !approxEqual(got, s.want) {
			fmt.Printf("\n  %s: got %v, want %v", s.name, got, s.want)
			out = false
		}
	}
	if !out {
		fmt.Printf("\n")
	}
	return out
}

func Load(host string, numTiles, size, concLevel int) (bool, time.Duration) {
	start := time.Now()

	errChan := make(chan error, 100)
	rp := pb.NewRemoteTileProcessor(context.Background(), []string{host}, concLevel, errChan)
	go rp.Run(false)

	go func() {
		defer close(rp.In)
		for i := 0; i < numTiles; i++ {
			t := &proc.BandTile{
				Script:    "ndvi-color",
				Width:     size,
				Height:    size,
				OffX:      i * size,
				Bands:     map[string][]float32{"B08": make([]float32, size*size), "B04": make([]float32, size*size)},
				DataMask:  make([]float32, size*size),
				TimeStamp: time.Now().UTC(),
			}
			for j := range t.Bands["B08"] {
				t.DataMask[j] = 1
				t.Bands["B08"][j] = float32(j%size) / float32(size)
				t.Bands["B04"][j] = float32(j/size) / float32(size)
			}
			rp.In <- t
		}
	}()

	go func() {
		for range rp.KPIs {
		}
	}()
	n := 0
	for range rp.Out {
		n++
	}

	select {
	case err := <-errChan:
		fmt.Println(err)
		return false, time.Since(start)
	default:
	}
	return n == numTiles, time.Since(start)
}

func main() {
	host := flag.String("h", "localhost:6000", "Pixel server address")
	suite := flag.String("s", "scenarios", "Test suite [scenarios, load]")
	conc := flag.Int("n", 6, "Concurrency level for acceptance tests")
	numTiles := flag.Int("t", 500, "Number of tiles sent by the load suite")
	size := flag.Int("size", 256, "Tile width and height for the load suite")
	flag.Parse()

	if terminal.IsTerminal(int(os.Stdout.Fd())) {
		passed = utils.InGreen(passed)
		failed = utils.InRed(failed)
	}

	c, err := pb.Dial(*host, 0)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer c.Close()

	fmt.Printf("Testing script listing: ")
	if !Scripts(c) {
		fmt.Println(failed)
		os.Exit(1)
	}
	fmt.Println(passed)

	switch *suite {
	case "scenarios":
		fmt.Printf("Testing single pixel scenarios: ")
		if !Scenarios(c) {
			fmt.Println(failed)
			os.Exit(1)
		}
		fmt.Println(passed)
	case "load":
		fmt.Printf("Testing evaluation Sending %d tiles: ", *numTiles)
		ok, t := Load(*host, *numTiles, *size, *conc)
		if !ok {
			fmt.Println(failed)
			os.Exit(1)
		}
		fmt.Println(passed, t)
	}
}
