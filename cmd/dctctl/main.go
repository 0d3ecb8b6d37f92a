package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"example.com/dctgate/internal/common"
	"example.com/dctgate/internal/config"
	"example.com/dctgate/internal/dct2000"
	"example.com/dctgate/internal/report"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	cmd := os.Args[1]
	switch cmd {
	case "decode":
		decodeCmd(os.Args[2:])
	case "retime":
		retimeCmd(os.Args[2:])
	case "verify":
		verifyCmd(os.Args[2:])
	case "export":
		exportCmd(os.Args[2:])
	case "report":
		reportCmd(os.Args[2:])
	case "stats":
		statsCmd(os.Args[2:])
	case "manifest":
		manifestCmd(os.Args[2:])
	case "batch":
		batchCmd(os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Printf(`dctctl %s (built %s) <command> [options]

Commands:
  decode    --in <trace.out> [--out <records.ndjson>]
  retime    --in <trace.out> --delta <duration> --out <retimed.out> [--audit <edits.jsonl>]
  verify    --in <trace.out>
  export    --in <trace.out> --out <capture.pcap> [--encap <kind>] [--snaplen <n>]
  report    --in <trace.out> [--json <summary.json>] [--pdf <summary.pdf>] [--lang en|tr]
  stats     --in <trace.out> [--progress]
  manifest  --inputs <comma-separated> --out <manifest.json> | --verify <manifest.json>
  batch     --in <dir> --out-dir <dir> [--concurrency <n>]

Every command accepts --config <file>, --tz <zone> and --log-level <level>.
`, version, buildDate)
}

// codecFlags registers the flags shared by every command that reads traces.
type codecFlags struct {
	configPath *string
	tz         *string
	logLevel   *string
}

func addCodecFlags(fs *flag.FlagSet) codecFlags {
	return codecFlags{
		configPath: fs.String("config", "", "YAML or TOML configuration file"),
		tz:         fs.String("tz", "", "time zone of the trace header (overrides config)"),
		logLevel:   fs.String("log-level", "", "log level (debug, info, warn, error)"),
	}
}

// resolve loads the configuration and returns it with the matching reader
// options.
func (c codecFlags) resolve() (config.Config, []dct2000.Option, error) {
	cfg := config.Default()
	if *c.configPath != "" {
		var err error
		if cfg, err = config.Load(*c.configPath); err != nil {
			return cfg, nil, fmt.Errorf("load config: %w", err)
		}
	}
	if *c.tz != "" {
		cfg.Codec.TimeZone = *c.tz
	}
	level := cfg.Logs.Level
	if *c.logLevel != "" {
		level = *c.logLevel
	}
	if level != "" {
		if err := common.SetLogLevel(level); err != nil {
			return cfg, nil, err
		}
	}
	opts, err := cfg.ReaderOptions()
	return cfg, opts, err
}

func mustResolve(c codecFlags) (config.Config, []dct2000.Option) {
	cfg, opts, err := c.resolve()
	if err != nil {
		fmt.Println("config:", err)
		os.Exit(1)
	}
	return cfg, opts
}

func decodeCmd(args []string) {
	fs := flag.NewFlagSet("decode", flag.ExitOnError)
	in := fs.String("in", "", "input trace")
	out := fs.String("out", "", "NDJSON output (default stdout)")
	cf := addCodecFlags(fs)
	fs.Parse(args)

	if *in == "" {
		fmt.Println("required: --in")
		os.Exit(1)
	}
	_, opts := mustResolve(cf)

	var w io.Writer = os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			fmt.Println("create output:", err)
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}
	bw := bufio.NewWriter(w)
	n, skipped, err := runDecode(*in, bw, opts)
	if ferr := bw.Flush(); err == nil {
		err = ferr
	}
	if err != nil {
		fmt.Println("decode:", err)
		os.Exit(1)
	}
	if *out != "" {
		fmt.Printf("Wrote %d records to %s (%d lines skipped)\n", n, *out, skipped)
	}
}

func retimeCmd(args []string) {
	fs := flag.NewFlagSet("retime", flag.ExitOnError)
	in := fs.String("in", "", "input trace")
	out := fs.String("out", "", "retimed output trace")
	delta := fs.Duration("delta", 0, "time shift, e.g. 1.5s or -250ms")
	audit := fs.String("audit", "", "edit log output (jsonl), defaults to <out>.edits.jsonl")
	cf := addCodecFlags(fs)
	fs.Parse(args)

	if *in == "" || *out == "" {
		fmt.Println("required: --in, --out")
		os.Exit(1)
	}
	if *in == *out {
		fmt.Println("--out must differ from --in")
		os.Exit(1)
	}
	_, opts := mustResolve(cf)

	auditPath := *audit
	if auditPath == "" {
		auditPath = *out + ".edits.jsonl"
	}
	res, err := runRetime(*in, *out, *delta, common.NewEditLog(auditPath), opts)
	if err != nil {
		fmt.Println("retime:", err)
		os.Exit(1)
	}
	fmt.Printf("Retimed %d records by %s (%d clamped to start)\n", res.Records, *delta, res.Clamped)
	if len(res.Edits) > 0 {
		fmt.Printf("Edit log: %s\n", auditPath)
	}
}

func verifyCmd(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	in := fs.String("in", "", "input trace")
	maxShown := fs.Int("show", 5, "mismatching lines to print")
	cf := addCodecFlags(fs)
	fs.Parse(args)

	if *in == "" {
		fmt.Println("required: --in")
		os.Exit(1)
	}
	_, opts := mustResolve(cf)
	res, err := runVerify(*in, opts)
	if err != nil {
		fmt.Println("verify:", err)
		os.Exit(1)
	}
	fmt.Printf("records=%d identical=%d mismatched=%d skipped=%d\n",
		res.Records, res.Records-len(res.Mismatches), len(res.Mismatches), res.Skipped)
	for i, m := range res.Mismatches {
		if i == *maxShown {
			fmt.Printf("... %d more\n", len(res.Mismatches)-i)
			break
		}
		fmt.Printf("offset %d:\n  read: %q\n  dump: %q\n", m.Offset, m.Original, m.Dumped)
	}
	if len(res.Mismatches) > 0 {
		os.Exit(1)
	}
}

func exportCmd(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	in := fs.String("in", "", "input trace")
	out := fs.String("out", "", "pcap output")
	encapName := fs.String("encap", "", "encapsulation to export (default: from config, else most common)")
	snaplen := fs.Int("snaplen", 0, "bytes captured per packet (default: from config)")
	cf := addCodecFlags(fs)
	fs.Parse(args)

	if *in == "" || *out == "" {
		fmt.Println("required: --in, --out")
		os.Exit(1)
	}
	cfg, opts := mustResolve(cf)
	name := *encapName
	if name == "" {
		name = cfg.Export.Encapsulation
	}
	snap := *snaplen
	if snap <= 0 {
		snap = cfg.Export.SnapLen
	}
	res, err := runExport(*in, *out, name, snap, opts)
	if err != nil {
		fmt.Println("export:", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d %s packets to %s (%d records skipped)\n", res.Written, res.Encap, *out, res.Skipped)
}

func reportCmd(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	in := fs.String("in", "", "input trace")
	jsonOut := fs.String("json", "", "summary JSON output")
	pdfOut := fs.String("pdf", "", "summary PDF output")
	langFlag := fs.String("lang", "en", "PDF language (en, tr)")
	cf := addCodecFlags(fs)
	fs.Parse(args)

	if *in == "" {
		fmt.Println("required: --in")
		os.Exit(1)
	}
	lang, err := report.ParseLanguage(*langFlag)
	if err != nil {
		fmt.Println("lang:", err)
		os.Exit(1)
	}
	_, opts := mustResolve(cf)
	sum, err := report.BuildSummary(*in, opts...)
	if err != nil {
		fmt.Println("summarize:", err)
		os.Exit(1)
	}
	if *jsonOut != "" {
		if err := report.SaveSummaryJSON(sum, *jsonOut); err != nil {
			fmt.Println("write json:", err)
			os.Exit(1)
		}
		fmt.Println("Wrote JSON:", *jsonOut)
	}
	if *pdfOut != "" {
		if err := report.SaveSummaryPDF(sum, *pdfOut, lang); err != nil {
			fmt.Println("write pdf:", err)
			os.Exit(1)
		}
		fmt.Println("Wrote PDF:", *pdfOut)
	}
	fmt.Printf("records=%d comments=%d skipped=%d span=%s..%s sha256=%s\n",
		sum.Records, sum.Comments, sum.SkippedLines, sum.First, sum.Last, sum.SHA256)
}

func statsCmd(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	in := fs.String("in", "", "input trace")
	progress := fs.Bool("progress", false, "display progress updates")
	cf := addCodecFlags(fs)
	fs.Parse(args)

	if *in == "" {
		fmt.Println("required: --in")
		os.Exit(1)
	}
	_, opts := mustResolve(cf)
	metrics := common.NewMetrics()
	opts = append(opts, dct2000.WithMetrics(metrics))

	metrics.Start()
	var stopProgress func()
	if *progress {
		stopProgress = common.StartProgressPrinter(os.Stderr, metrics, 500*time.Millisecond)
	}
	_, idx, err := dct2000.ScanFile(*in, opts...)
	if stopProgress != nil {
		stopProgress()
	}
	metrics.Stop()
	if err != nil {
		fmt.Println("scan:", err)
		os.Exit(1)
	}
	snap := metrics.Snapshot()
	mbPerSec := snap.ThroughputBytesPerSecond() / 1_000_000
	fmt.Printf("Metrics: duration=%s records=%d skipped=%d processed=%s throughput=%.2f MB/s\n",
		snap.Duration.Round(10*time.Millisecond),
		snap.Records,
		snap.Skipped,
		common.FormatBytes(snap.Bytes),
		mbPerSec,
	)
	sum := report.Summarize(dct2000.FileHeader{}, idx)
	for _, c := range sum.ByProtocol {
		fmt.Printf("  %-24s %8d records %12s\n", c.Name, c.Records, common.FormatBytes(c.Bytes))
	}
}

func manifestCmd(args []string) {
	fs := flag.NewFlagSet("manifest", flag.ExitOnError)
	inputs := fs.String("inputs", "", "comma-separated paths")
	out := fs.String("out", "manifest.json", "output json")
	verify := fs.String("verify", "", "manifest to check against the files on disk")
	fs.Parse(args)

	if *verify != "" {
		m, err := report.LoadManifest(*verify)
		if err != nil {
			fmt.Println("load manifest:", err)
			os.Exit(1)
		}
		changed, err := report.VerifyManifest(m)
		if err != nil {
			fmt.Println("verify manifest:", err)
			os.Exit(1)
		}
		for _, p := range changed {
			fmt.Println("CHANGED", p)
		}
		if len(changed) > 0 {
			os.Exit(1)
		}
		fmt.Printf("Manifest OK (%d files)\n", len(m.Items))
		return
	}

	var paths []string
	for _, p := range strings.Split(*inputs, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		paths = append(paths, p)
	}
	if len(paths) == 0 {
		fmt.Println("required: --inputs or --verify")
		os.Exit(1)
	}
	m, err := report.BuildManifest(paths)
	if err != nil {
		fmt.Println("manifest build:", err)
		os.Exit(1)
	}
	if err := report.SaveManifest(m, *out); err != nil {
		fmt.Println("manifest save:", err)
		os.Exit(1)
	}
	fmt.Println("Wrote", *out)
}

func batchCmd(args []string) {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	inDir := fs.String("in", ".", "input directory")
	outDir := fs.String("out-dir", "out", "results directory")
	concurrency := fs.Int("concurrency", runtime.NumCPU(), "traces summarized in parallel")
	cf := addCodecFlags(fs)
	fs.Parse(args)

	cfg, opts := mustResolve(cf)
	if *concurrency <= 0 && cfg.Concurrency > 0 {
		*concurrency = cfg.Concurrency
	}
	results, err := runBatch(*inDir, *outDir, *concurrency, opts)
	if err != nil {
		fmt.Println("batch:", err)
		os.Exit(1)
	}
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Printf("FAIL %s: %v\n", r.Input, r.Err)
			continue
		}
		fmt.Printf("OK   %s -> %s (%d records)\n", r.Input, r.Output, r.Records)
	}
	if failed > 0 {
		fmt.Printf("%d of %d traces failed\n", failed, len(results))
		os.Exit(1)
	}
	if len(results) == 0 {
		fmt.Println("no traces found in", *inDir)
	}
}

var errNoExportable = errors.New("trace has no exportable records")
