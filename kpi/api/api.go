// KPI API
// Serves the per-tile summaries produced by the pixel servers.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"

	"github.com/nci/evalpix/kpi"
)

var (
	dbName   = flag.String("database", "evalpix", "database name")
	dbUser   = flag.String("user", "api", "database user name")
	dbPool   = flag.Int("pool", 8, "database pool size")
	dbLimit  = flag.Int("limit", 64, "database concurrent requests")
	httpPort = flag.Int("port", 8080, "http port")
	mcURI    = flag.String("memcache", "", "memcache uri host:port")
	initDB   = flag.Bool("init", false, "create the kpi_summary table if missing")
)

func main() {

	flag.Parse()

	log.Printf("dbUser %s dbName %s dbPool %d httpPort %d", *dbUser, *dbName, *dbPool, *httpPort)

	store, err := kpi.Open(*dbUser, *dbName, *dbPool, *dbLimit, *mcURI)
	if err != nil {
		panic(err)
	}

	defer store.Close()

	if *initDB {
		if err := store.Init(context.Background()); err != nil {
			log.Fatalf("failed to create schema: %v", err)
		}
	}

	http.Handle("/", kpi.NewHandler(store))
	log.Fatal(http.ListenAndServe(fmt.Sprintf(":%d", *httpPort), nil))
}
