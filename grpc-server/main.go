package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	reuseport "github.com/kavu/go_reuseport"
	"github.com/nci/evalpix/metrics"
	"github.com/nci/evalpix/processor"
	"github.com/nci/evalpix/utils"
	pb "github.com/nci/evalpix/worker/pixelservice"
	"google.golang.org/grpc"
)

func main() {
	port := flag.Int("p", 6000, "gRPC server listening port.")
	poolSize := flag.Int("n", 8, "Maximum number of tiles evaluated concurrently.")
	concLevel := flag.Int("c", 4, "Goroutines per tile.")
	kpiBand := flag.Int("kpi_band", 0, "Output band summarised in responses.")
	confDir := flag.String("conf_dir", "", "Config directory; built-in scripts are served when empty.")
	logDir := flag.String("log_dir", "", "Metrics log directory, '-' for stdout.")
	debug := flag.Bool("debug", false, "verbose logging")
	flag.Parse()

	Info, Error := utils.NewLoggers("PIXEL: ")

	confMap := map[string]*utils.Config{"": utils.BuiltinScripts()}
	if len(*confDir) > 0 {
		utils.EtcDir = *confDir
		var err error
		confMap, err = utils.LoadAllConfigFiles(utils.EtcDir, *debug)
		if err != nil {
			Error.Printf("Error in loading config files: %v\n", err)
			os.Exit(2)
		}
	}

	scripts, err := processor.CompileScripts(confMap)
	if err != nil {
		Error.Printf("Invalid scripts: %v\n", err)
		os.Exit(2)
	}

	metricsLogger := metrics.NewLogger(*logDir, *debug, Error)
	srv := pb.NewServer(scripts, *poolSize, *concLevel, metricsLogger, *debug)
	srv.KPIBand = *kpiBand

	if len(*confDir) > 0 {
		utils.WatchConfig(Info, Error, *debug, func(confMap map[string]*utils.Config) error {
			scripts, err := processor.CompileScripts(confMap)
			if err != nil {
				return err
			}
			srv.SetScripts(scripts)
			Info.Printf("Serving scripts %v", scripts.Names())
			return nil
		})
	}

	s := grpc.NewServer()
	pb.RegisterPixelServer(s, srv)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-signals
		s.GracefulStop()
		if metricsLogger != nil {
			metricsLogger.Close()
		}
		os.Exit(1)
	}()

	lis, err := reuseport.Listen("tcp", fmt.Sprintf(":%d", *port))
	if err != nil {
		Error.Fatalf("failed to listen: %v", err)
	}

	Info.Printf("Serving scripts %v on port %d", scripts.Names(), *port)
	if err := s.Serve(lis); err != nil {
		Error.Fatalf("failed to serve: %v", err)
	}
}
