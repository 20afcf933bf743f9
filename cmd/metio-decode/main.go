package main

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/cheggaaa/pb/v3"
	"github.com/fatih/color"
	"github.com/jessevdk/go-flags"
	jsoniter "github.com/json-iterator/go"
	"github.com/nmcdev/metio"
	"github.com/nmcdev/metio/field"
	"github.com/nmcdev/metio/micaps"
	"github.com/nmcdev/metio/source"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var cli struct {
	Args struct {
		Filenames []string `required:"1"`
	} `positional-args:"yes" required:"yes"`
	LogLevel    string  `short:"l" long:"log-level" description:"logging level" choice:"error" choice:"info" choice:"debug" choice:"trace" default:"info"`
	Jobs        int     `short:"j" long:"jobs" description:"files decoded in parallel (0: one per CPU)"`
	Limit       string  `long:"limit" description:"restrict MICAPS products to min_lat,min_lon,max_lat,max_lon"`
	Scale       float64 `long:"scale" description:"scale applied to MICAPS grids" default:"1"`
	Offset      float64 `long:"offset" description:"offset applied to MICAPS grids after scaling"`
	SWANProduct string  `long:"swan-product" description:"SWAN product name, inferred from the file when empty"`
	Progress    bool    `short:"p" long:"progress" description:"show a progress bar"`
	Pretty      bool    `long:"pretty" description:"indent the JSON summaries"`
	ExportDir   string  `long:"export-dir" description:"also write grids and station tables as MICAPS text under this directory"`
}

// errorLevels maps --log-level choices to logrus levels.
var errorLevels = map[string]logrus.Level{
	"error": logrus.ErrorLevel,
	"info":  logrus.InfoLevel,
	"debug": logrus.DebugLevel,
	"trace": logrus.TraceLevel,
}

func main() {
	// parse the input args
	if _, err := flags.Parse(&cli); err != nil {
		os.Exit(1)
	}
	logrus.SetLevel(errorLevels[cli.LogLevel])

	opts, err := options()
	if err != nil {
		logrus.Fatal(err)
	}

	summaries, failed := decodeAll(context.Background(), source.File{}, cli.Args.Filenames, opts)

	enc := json.NewEncoder(os.Stdout)
	if cli.Pretty {
		enc.SetIndent("", "  ")
	}
	for _, s := range summaries {
		if err := enc.Encode(s); err != nil {
			logrus.Fatal(err)
		}
	}

	if failed > 0 {
		logrus.Errorf("%s of %d files failed", color.RedString("%d", failed), len(cli.Args.Filenames))
		os.Exit(2)
	}
}

func options() (metio.Options, error) {
	opts := metio.Options{SWANProduct: cli.SWANProduct}
	if cli.Limit != "" {
		box, err := field.ParseBBox(cli.Limit)
		if err != nil {
			return opts, err
		}
		opts.WithLimit(box)
	}
	if cli.Scale != 1 || cli.Offset != 0 {
		opts.Micaps = append(opts.Micaps, micaps.WithScaleOffset(cli.Scale, cli.Offset))
	}
	return opts, nil
}

// decodeAll decodes every file concurrently and returns the summaries in
// input order. A file that fails to read or decode is logged and skipped.
func decodeAll(ctx context.Context, src source.Source, names []string, opts metio.Options) ([]metio.Summary, int) {
	jobs := cli.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}

	var bar *pb.ProgressBar
	if cli.Progress {
		bar = pb.StartNew(len(names))
		defer bar.Finish()
	}

	var (
		mtx       sync.Mutex
		summaries = make(map[int]metio.Summary, len(names))
		failed    int
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, name := range names {
		g.Go(func() error {
			if bar != nil {
				defer bar.Increment()
			}
			s, err := decodeFile(ctx, src, name, opts)

			mtx.Lock()
			defer mtx.Unlock()
			if err != nil {
				logrus.Warnf("Skipping %s: %v", name, err)
				failed++
				return nil
			}
			summaries[i] = s
			return nil
		})
	}
	// decodeFile failures never abort the group
	_ = g.Wait()

	idx := make([]int, 0, len(summaries))
	for i := range summaries {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	out := make([]metio.Summary, 0, len(idx))
	for _, i := range idx {
		out = append(out, summaries[i])
	}
	return out, failed
}

func decodeFile(ctx context.Context, src source.Source, name string, opts metio.Options) (metio.Summary, error) {
	data, err := src.ReadAll(ctx, name)
	if err != nil {
		return metio.Summary{}, err
	}
	logrus.Info(color.CyanString("decoding "), name)
	res, err := metio.Decode(filepath.Base(name), data, opts)
	if err != nil {
		return metio.Summary{}, err
	}
	if cli.ExportDir != "" {
		if _, err := export(cli.ExportDir, res); err != nil {
			return metio.Summary{}, err
		}
	}
	return res.Summarize(name), nil
}
