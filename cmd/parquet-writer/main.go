// Package main implements the parquet-writer command line tool. It drives a
// writer session from a declarative JSON layout and newline-delimited JSON
// rows, producing sealed parquet files, and can replay the journal of an
// interrupted session.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	json "github.com/goccy/go-json"

	"github.com/matthewfeickert/parquet-writer/internal/journal"
	"github.com/matthewfeickert/parquet-writer/pkg/writer"
)

type options struct {
	configPath   string
	layoutPath   string
	metadataPath string
	inputPath    string
	replayPath   string
	dataset      string
	outputDir    string
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.configPath, "config", "", "writer config file (YAML or JSON)")
	flag.StringVar(&o.layoutPath, "layout", "", "JSON layout file declaring the columns")
	flag.StringVar(&o.metadataPath, "metadata", "", "JSON metadata file stored in the output files")
	flag.StringVar(&o.inputPath, "input", "-", "newline-delimited JSON rows, - for stdin")
	flag.StringVar(&o.replayPath, "replay", "", "replay this journal instead of reading rows")
	flag.StringVar(&o.dataset, "dataset", "", "dataset name output files derive from")
	flag.StringVar(&o.outputDir, "output-dir", "", "override the configured output directory")
	flag.Parse()
	return o
}

func main() {
	o := parseFlags()

	cfg := writer.DefaultConfig()
	if o.configPath != "" {
		var err error
		cfg, err = writer.LoadConfig(o.configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if o.outputDir != "" {
		cfg.OutputDir = o.outputDir
	}

	ctx := context.Background()

	if o.replayPath != "" {
		w, err := writer.ReplayJournal(o.replayPath, cfg)
		if err != nil {
			log.Fatalf("Failed to replay journal: %v", err)
		}
		if err := w.Finish(ctx); err != nil {
			log.Fatalf("Failed to finish replayed session: %v", err)
		}
		log.Printf("Recovered %d rows into %v", w.Rows(), w.Files())
		return
	}

	if o.layoutPath == "" || o.dataset == "" {
		log.Fatal("Both -layout and -dataset are required")
	}

	w, err := buildWriter(cfg, o)
	if err != nil {
		log.Fatalf("Failed to initialize writer: %v", err)
	}

	in, cleanup, err := openInput(o.inputPath)
	if err != nil {
		log.Fatalf("Failed to open input: %v", err)
	}
	defer cleanup()

	rows, err := writeRows(w, in)
	if err != nil {
		log.Fatalf("Failed at row %d: %v", rows+1, err)
	}
	if err := w.Finish(ctx); err != nil {
		log.Fatalf("Failed to finish: %v", err)
	}
	log.Printf("Wrote %d rows into %v", w.Rows(), w.Files())
}

func buildWriter(cfg writer.Config, o options) (*writer.Writer, error) {
	layout, err := os.ReadFile(o.layoutPath)
	if err != nil {
		return nil, fmt.Errorf("read layout: %w", err)
	}

	w := writer.New(cfg)
	if err := w.SetLayout(layout); err != nil {
		return nil, err
	}
	if err := w.SetDatasetName(o.dataset); err != nil {
		return nil, err
	}
	if o.metadataPath != "" {
		md, err := os.ReadFile(o.metadataPath)
		if err != nil {
			return nil, fmt.Errorf("read metadata: %w", err)
		}
		if err := w.SetMetadata(md); err != nil {
			return nil, err
		}
	}
	if err := w.Initialize(); err != nil {
		return nil, err
	}
	return w, nil
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

// writeRows feeds one NDJSON object per row: keys are dotted column paths,
// values are decoded against the declared types before filling.
func writeRows(w *writer.Writer, in io.Reader) (int, error) {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 1<<20), 1<<26)

	rows := 0
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var row map[string]any
		if err := json.Unmarshal(line, &row); err != nil {
			return rows, fmt.Errorf("row is not a JSON object: %w", err)
		}
		for path, raw := range row {
			spec, ok := w.ColumnSpec(path)
			if !ok {
				return rows, fmt.Errorf("no column at path %q", path)
			}
			v, err := journal.DecodeValue(spec, raw)
			if err != nil {
				return rows, err
			}
			if err := w.Fill(path, v); err != nil {
				return rows, err
			}
		}
		if err := w.EndRow(); err != nil {
			return rows, err
		}
		rows++
	}
	return rows, sc.Err()
}
