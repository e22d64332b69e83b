// Command classify reclassifies access-log lines offline: it reads JSON log
// lines from a file or stdin, runs the same enrichment and waterfall the
// pipeline runs, and prints one JSON verdict per line. No session aggregates
// are supplied; rate-based rules stay inert here.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/goccy/go-json"

	"github.com/trafficlens/trafficlens/internal/adapter/logsource"
	"github.com/trafficlens/trafficlens/internal/classify"
	"github.com/trafficlens/trafficlens/internal/domain"
	"github.com/trafficlens/trafficlens/internal/enrich"
	"github.com/trafficlens/trafficlens/internal/signal"
)

type verdict struct {
	ClientAddress      string                      `json:"client_address"`
	Path               string                      `json:"path"`
	UserAgent          string                      `json:"user_agent,omitempty"`
	DatacenterProvider string                      `json:"datacenter_provider,omitempty"`
	Result             domain.ClassificationResult `json:"result"`
}

func main() {
	input := flag.String("input", "-", "JSONL access-log file, or - for stdin")
	cityDB := flag.String("city-db", "", "GeoLite2-City mmdb path (optional)")
	asnDB := flag.String("asn-db", "", "GeoLite2-ASN mmdb path (optional)")
	flag.Parse()

	var in io.Reader = os.Stdin
	if *input != "-" {
		f, err := os.Open(*input)
		if err != nil {
			fmt.Fprintln(os.Stderr, "open input:", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	geo := &enrich.GeoResolver{}
	if *cityDB != "" {
		opened, err := enrich.OpenGeoResolver(*cityDB)
		if err != nil {
			slog.Warn("geo dataset unavailable, geo enrichment disabled", "error", err)
		} else {
			geo = opened
			defer geo.Close()
		}
	}

	netOrigin := &enrich.NetOriginResolver{}
	if *asnDB != "" {
		opened, err := enrich.OpenNetOriginResolver(*asnDB, enrich.DefaultProviderTable())
		if err != nil {
			slog.Warn("ASN dataset unavailable, network-origin enrichment disabled", "error", err)
		} else {
			netOrigin = opened
			defer netOrigin.Close()
		}
	}

	extractor := signal.NewExtractor(nil)
	engine := classify.New(classify.Config{})
	out := json.NewEncoder(os.Stdout)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if len(scanner.Bytes()) == 0 {
			continue
		}

		record, err := logsource.ParseLine(scanner.Bytes(), fmt.Sprintf("stdin:%d", lineNo))
		if err != nil {
			fmt.Fprintf(os.Stderr, "line %d: %v\n", lineNo, err)
			continue
		}

		ev := domain.NewNormalizedEvent(record)
		geo.Enrich(&ev)
		netOrigin.Enrich(&ev)
		extractor.Enrich(&ev)
		res := engine.Classify(ev, nil)

		_ = out.Encode(verdict{
			ClientAddress:      ev.ClientAddress,
			Path:               ev.Path,
			UserAgent:          ev.UserAgent,
			DatacenterProvider: ev.DatacenterProvider,
			Result:             res,
		})
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "read input:", err)
		os.Exit(1)
	}
}
