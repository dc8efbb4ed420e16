// Command smartquery runs the analytics engine in-process. With -sql it
// loads events from a JSON file, executes one query, and prints the result;
// otherwise it runs until interrupted.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/AryanB1/SmartQuery/internal/app"
	"github.com/AryanB1/SmartQuery/internal/config"
	"github.com/AryanB1/SmartQuery/pkg/types"
)

func main() {
	configPath := flag.String("config", "", "path to YAML or JSON config file")
	eventsPath := flag.String("events", "", "path to a JSON array of events to ingest")
	sql := flag.String("sql", "", "query to execute before exiting")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("smartquery: invalid config: %v", err)
	}

	engine, err := app.New(cfg)
	if err != nil {
		log.Fatalf("smartquery: startup failed: %v", err)
	}
	defer engine.Shutdown()

	if *eventsPath != "" {
		if err := ingestFile(engine, *eventsPath); err != nil {
			log.Fatalf("smartquery: ingest failed: %v", err)
		}
	}

	if *sql != "" {
		engine.Ingest.Flush()
		result, err := engine.Query.Execute(&types.QueryRequest{SQL: *sql})
		if err != nil {
			log.Fatalf("smartquery: query failed: %v", err)
		}
		printResult(result)
		return
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	log.Printf("smartquery: running (tables: %v)", engine.Query.TableNames())
	<-sig
	log.Printf("smartquery: shutting down")
}

func ingestFile(engine *app.App, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var events []*types.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	accepted := engine.Ingest.Submit(events)
	if accepted < 0 {
		return fmt.Errorf("ingest buffer overloaded, batch of %d dropped", len(events))
	}
	log.Printf("smartquery: ingested %d events", accepted)
	return nil
}

func printResult(result *types.QueryResult) {
	fmt.Println(strings.Join(result.Columns, "\t"))
	for _, row := range result.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = "NULL"
			} else {
				cells[i] = fmt.Sprintf("%v", v)
			}
		}
		fmt.Println(strings.Join(cells, "\t"))
	}
	fmt.Println(result.StatsString())
}
