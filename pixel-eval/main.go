package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nci/evalpix/crawl"
	"github.com/nci/evalpix/metrics"
	"github.com/nci/evalpix/processor"
	"github.com/nci/evalpix/utils"
	pb "github.com/nci/evalpix/worker/pixelservice"
)

func evaluateRemote(ctx context.Context, workers []string, tiles []*processor.BandTile, concLevel int, verbose bool) (*processor.TileResult, error) {
	errChan := make(chan error, 100)
	rp := pb.NewRemoteTileProcessor(ctx, workers, concLevel, errChan)
	go func() {
		defer close(rp.In)
		for _, t := range tiles {
			select {
			case rp.In <- t:
			case <-ctx.Done():
				return
			}
		}
	}()
	go rp.Run(verbose)

	res := &processor.TileResult{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for k := range rp.KPIs {
			res.KPIs = append(res.KPIs, k)
		}
	}()
	for t := range rp.Out {
		res.Tiles = append(res.Tiles, t)
	}
	<-done

	select {
	case err := <-errChan:
		return nil, err
	default:
	}
	return res, nil
}

func putKPIs(url string, kpis []*processor.KPISummary) error {
	body, err := json.Marshal(kpis)
	if err != nil {
		return err
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("kpi store returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func run() int {
	confDir := flag.String("conf_dir", "", "Config directory; built-in scripts are used when empty.")
	dataDir := flag.String("data_dir", "", "Colon separated search path for templates.")
	scriptName := flag.String("script", "", "Script applied to every tile, overriding the tile's own.")
	inPath := flag.String("in", "", "Tile file, or a directory of tile files.")
	pattern := flag.String("pattern", "", "Filter expression over the path and type of files under -in.")
	outPath := flag.String("out", "-", "Output file, '-' for stdout.")
	format := flag.String("format", "json", "Output format: json, png or tiff.")
	describe := flag.Bool("describe", false, "Describe the scripts and exit.")
	checkConf := flag.Bool("check_conf", false, "Compile the scripts and exit.")
	dumpConf := flag.Bool("dump_conf", false, "Print the config as JSON and exit.")
	logDir := flag.String("log_dir", "", "Metrics log directory, '-' for stdout.")
	workers := flag.String("workers", "", "Comma separated pixel servers, overriding service_config.worker_nodes. Tiles are evaluated locally when neither is set.")
	concLevel := flag.Int("n", 4, "Concurrency level.")
	kpiURL := flag.String("kpi_url", "", "KPI API endpoint receiving the tile summaries, overriding service_config.kpi_address.")
	verbose := flag.Bool("v", false, "Verbose mode")
	flag.Parse()

	Info, Error := utils.NewLoggers("EVAL: ")

	confMap := map[string]*utils.Config{"": utils.BuiltinScripts()}
	if len(*confDir) > 0 {
		utils.EtcDir = *confDir
		var err error
		confMap, err = utils.LoadAllConfigFiles(utils.EtcDir, *verbose)
		if err != nil {
			Error.Printf("Error in loading config files: %v\n", err)
			return 1
		}
	}

	if *dumpConf {
		configJson, err := utils.DumpConfig(confMap)
		if err != nil {
			Error.Printf("Error in dumping configs: %v\n", err)
			return 1
		}
		fmt.Println(configJson)
		return 0
	}

	scripts, err := processor.CompileScripts(confMap)
	if err != nil {
		Error.Printf("Invalid scripts: %v\n", err)
		return 1
	}

	if *checkConf {
		Info.Printf("%d scripts OK: %v", len(scripts), scripts.Names())
		return 0
	}

	if *describe {
		tplDir, err := utils.NewFileResolver(*dataDir).TemplateDir()
		if err == nil {
			err = utils.DescribeScripts(os.Stdout, confMap, tplDir)
		}
		if err != nil {
			Error.Printf("Failed to describe scripts: %v\n", err)
			return 1
		}
		return 0
	}

	if len(*inPath) == 0 {
		Error.Printf("-in is required")
		flag.Usage()
		return 1
	}

	outFormat := strings.ToLower(*format)
	imgFormat := processor.ImageFormat(outFormat)
	if outFormat != "json" && imgFormat != processor.FormatPNG && imgFormat != processor.FormatTIFF {
		Error.Printf("unsupported format: %s", *format)
		return 1
	}

	metricsLogger := metrics.NewLogger(*logDir, *verbose, Error)
	metricsCollector := metrics.NewMetricsCollector(metricsLogger)
	defer func() {
		if metricsLogger != nil {
			metricsLogger.Close()
		}
	}()
	defer metricsCollector.Log()

	t0 := time.Now()
	metricsCollector.Info.ReqTime = t0.Format(time.RFC3339)
	metricsCollector.Info.Method = "cli"
	metricsCollector.Info.URL.RawURL = *inPath
	defer func() { metricsCollector.Info.ReqDuration = time.Since(t0) }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-signals
		cancel()
	}()

	paths, err := crawl.FindTiles(*inPath, *pattern)
	if err != nil {
		metricsCollector.Fail(400, err)
		Error.Printf("Failed to list tiles: %v", err)
		return 1
	}
	tiles, err := crawl.LoadTiles(paths, *concLevel)
	if err != nil {
		metricsCollector.Fail(400, err)
		Error.Printf("Failed to load tiles: %v", err)
		return 1
	}
	for _, t := range tiles {
		if len(*scriptName) > 0 {
			t.Script = *scriptName
		}
		metricsCollector.AddScript(t.Script)
	}
	if *verbose {
		Info.Printf("%d tiles from %d files", len(tiles), len(paths))
	}

	var workerList []string
	if len(*workers) > 0 {
		workerList = strings.Split(*workers, ",")
	} else if root, ok := confMap[""]; ok {
		workerList = root.ServiceConfig.WorkerNodes
	}

	tp := time.Now()
	var res *processor.TileResult
	if len(workerList) > 0 {
		metricsCollector.Info.RPC.NumCalls = len(tiles)
		res, err = evaluateRemote(ctx, workerList, tiles, *concLevel, *verbose)
		metricsCollector.Info.RPC.Duration = time.Since(tp)
	} else {
		res, err = processor.ProcessTiles(ctx, scripts, tiles, *concLevel, *verbose)
	}
	metricsCollector.Info.Pipeline.Duration = time.Since(tp)
	if err != nil {
		metricsCollector.Fail(500, err)
		Error.Printf("Evaluation failed: %v", err)
		return 1
	}

	metricsCollector.Info.Pipeline.NumTiles = len(res.Tiles)
	for _, t := range res.Tiles {
		metricsCollector.Info.Pipeline.NumPixels += len(t.Valid)
		for _, v := range t.Valid {
			if !v {
				metricsCollector.Info.Pipeline.NumMasked++
			}
		}
	}

	for _, k := range res.KPIs {
		Info.Printf("%s %s (%d) count=%d masked=%d mean=%.4f min=%.4f max=%.4f std=%.4f",
			k.Script, k.TimeStamp.Format(time.RFC3339), k.Band, k.Count, k.Masked, k.Mean, k.Min, k.Max, k.Std)
	}
	kpiEndpoint := *kpiURL
	if root, ok := confMap[""]; ok && len(kpiEndpoint) == 0 && len(root.ServiceConfig.KPIAddress) > 0 {
		kpiEndpoint = fmt.Sprintf("http://%s/?put", root.ServiceConfig.KPIAddress)
	}
	if len(kpiEndpoint) > 0 && len(res.KPIs) > 0 {
		if err := putKPIs(kpiEndpoint, res.KPIs); err != nil {
			Error.Printf("Failed to store KPIs: %v", err)
		}
	}

	out := io.Writer(os.Stdout)
	if *outPath != "-" {
		f, err := os.Create(*outPath)
		if err != nil {
			metricsCollector.Fail(500, err)
			Error.Printf("Failed to create output: %v", err)
			return 1
		}
		defer f.Close()
		out = f
	}

	if outFormat == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		err = enc.Encode(res)
	} else {
		err = processor.EncodeImage(out, res.Tiles, scripts, imgFormat)
	}
	if err != nil {
		metricsCollector.Fail(500, err)
		Error.Printf("Failed to write output: %v", err)
		return 1
	}
	metricsCollector.Info.HTTPStatus = 200
	return 0
}

func main() {
	os.Exit(run())
}
