// Package main provides the pepscan command-line tool.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/epilab/pepscan/internal/analyze"
	"github.com/epilab/pepscan/internal/combine"
	"github.com/epilab/pepscan/internal/duckdb"
	"github.com/epilab/pepscan/internal/iedb"
	"github.com/epilab/pepscan/internal/immuno"
	"github.com/epilab/pepscan/internal/output"
	"github.com/epilab/pepscan/internal/peptide"
)

// Exit codes
const (
	ExitSuccess = 0
	ExitError   = 1
	ExitUsage   = 2
)

// Version information (set at build time)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	var showVersion bool
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Parse()

	if showVersion {
		fmt.Printf("pepscan version %s (%s) built %s\n", version, commit, date)
		return ExitSuccess
	}

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		return ExitUsage
	}

	switch args[0] {
	case "predict":
		return runPredict(args[1:])
	case "variants":
		return runVariants(args[1:])
	case "immuno":
		return runImmuno(args[1:])
	case "methods":
		return runMethods()
	case "config":
		return runConfig(args[1:])
	case "help":
		printUsage()
		return ExitSuccess
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", args[0])
		printUsage()
		return ExitUsage
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `pepscan - MHC Class I binding and immunogenicity prediction

Usage:
  pepscan [options] <command> [arguments]

Commands:
  predict     Predict binding and immunogenicity for peptides or a pattern
  variants    Expand a bracket pattern into concrete peptides
  immuno      Score peptide immunogenicity without binding prediction
  methods     List supported prediction methods
  config      Manage pepscan configuration
  help        Show this help message

Global Options:
  --version   Show version information

Examples:
  # Predict a 9-mer against two alleles with immunogenicity scoring
  pepscan predict --allele "HLA-A*02:01,HLA-B*07:02" --immuno SLYNTVATL

  # Expand a pattern with alternatives and analyze every variant
  pepscan predict --immuno "SL[YF]NTV[AT]TL"

  # Expand only
  pepscan variants "SL[YF]NTV[AT]TL"

  # Score immunogenicity for peptides in a file
  pepscan immuno --allele HLA-A0201 --peptides peptides.txt

For more information on a command, use:
  pepscan <command> --help
`)
}

func runPredict(args []string) int {
	fs := flag.NewFlagSet("predict", flag.ExitOnError)

	var (
		alleles      string
		method       string
		length       int
		batchSize    int
		delay        time.Duration
		workers      int
		withImmuno   bool
		mask         string
		peptidesFile string
		dbPath       string
		outputFile   string
		format       string
		decimalComma bool
		verbose      bool

		maxRank      float64
		minScore     float64
		maxIC50      float64
		minImmuno    float64
		minComposite float64
	)

	fs.StringVar(&alleles, "allele", configString("predict.alleles", "HLA-A*02:01"), "Comma-separated MHC-I alleles")
	fs.StringVar(&method, "method", configString("predict.method", ""), "Single prediction method (default: netmhcpan_el merged with netmhcpan_ba)")
	fs.IntVar(&length, "length", 9, "Peptide length")
	fs.IntVar(&batchSize, "batch-size", configInt("predict.batch_size", iedb.DefaultBatchSize), "Peptides per service request")
	fs.DurationVar(&delay, "delay", configDuration("predict.delay", iedb.DefaultDelay), "Minimum delay between service requests")
	fs.IntVar(&workers, "workers", 1, "Concurrent service requests (max 5)")
	fs.BoolVar(&withImmuno, "immuno", false, "Also compute immunogenicity and composite scores")
	fs.StringVar(&mask, "mask", "", "Custom immunogenicity mask positions, e.g. 1,2,9")
	fs.StringVar(&peptidesFile, "peptides", "", "File with one peptide per line ('-' for stdin)")
	fs.StringVar(&dbPath, "db", "", "DuckDB file to store results in")
	fs.StringVar(&outputFile, "o", "", "Output file (default: stdout)")
	fs.StringVar(&outputFile, "output", "", "Output file (default: stdout)")
	fs.StringVar(&format, "f", "tab", "Output format: tab, csv, csv2 (';' separated, decimal comma)")
	fs.BoolVar(&decimalComma, "decimal-comma", false, "Write decimal commas (CSV with ';' separator only)")
	fs.BoolVar(&verbose, "verbose", false, "Verbose logging")

	fs.Float64Var(&maxRank, "max-rank", math.Inf(1), "Keep results with percentile_rank below this value")
	fs.Float64Var(&minScore, "min-score", math.Inf(-1), "Keep results with binding_score above this value")
	fs.Float64Var(&maxIC50, "max-ic50", math.Inf(1), "Keep results with ic50 below this value")
	fs.Float64Var(&minImmuno, "min-immuno", math.Inf(-1), "Keep results with immunogenicity_score above this value")
	fs.Float64Var(&minComposite, "min-composite", math.Inf(-1), "Keep results with composite_score above this value")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Predict MHC-I binding (and optionally immunogenicity) for peptides.

Usage:
  pepscan predict [options] [<pattern-or-peptide> ...]

Peptides come from positional arguments (plain sequences or bracket
patterns such as "SL[YF]NTVATL") and/or the --peptides file. Patterns
longer than --length are cut into sliding windows.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}

	logger := newLogger(verbose)
	defer logger.Sync()

	peptides, err := gatherPeptides(fs.Args(), peptidesFile, length)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitError
	}
	if len(peptides) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no peptides to analyze")
		return ExitUsage
	}

	maskPositions, err := parseMask(mask)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitUsage
	}

	opts := analyze.Options{
		Binding: iedb.Options{
			BatchSize: batchSize,
			Delay:     delay,
			Workers:   workers,
			Length:    length,
		},
		Immunogenicity: withImmuno,
		Mask:           maskPositions,
		Filter:         buildCriteria(maxRank, minScore, maxIC50, minImmuno, minComposite),
	}
	if method != "" {
		opts.Methods = []iedb.Method{iedb.Method(method)}
	}

	client := iedb.NewClient()
	client.SetLogger(logger)

	analyzer := analyze.NewAnalyzer(client, immuno.DefaultScale())
	analyzer.SetLogger(logger)

	// Ctrl-C stops issuing new requests; partial results are still written.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := analyzer.Run(ctx, peptides, splitList(alleles), opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitError
	}

	if err := writeResults(report.Results, outputFile, format, decimalComma); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitError
	}

	if dbPath != "" {
		if err := storeResults(report.Results, dbPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitError
		}
	}

	fmt.Fprintf(os.Stderr, "%d results (%d analyzed, %d failed)\n",
		len(report.Results), report.Succeeded, report.FailedCount)
	for _, f := range report.Failed {
		logger.Warn("prediction failed",
			zap.String("peptide", f.Peptide),
			zap.String("allele", f.Allele),
			zap.String("reason", f.Reason))
	}
	for _, f := range report.ImmunoFailures {
		logger.Warn("immunogenicity scoring failed",
			zap.String("peptide", f.Peptide),
			zap.Error(f.Err))
	}

	return ExitSuccess
}

func runVariants(args []string) int {
	fs := flag.NewFlagSet("variants", flag.ExitOnError)
	var length int
	fs.IntVar(&length, "length", 0, "Window length (default: full pattern length)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Expand a bracket pattern into concrete peptides, one per line.

Usage:
  pepscan variants [options] <pattern>

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return ExitUsage
	}

	p, err := peptide.ParsePattern(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitError
	}
	g, err := peptide.NewGenerator(p, length)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitError
	}

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	for seq, ok := g.Next(); ok; seq, ok = g.Next() {
		fmt.Fprintln(w, seq)
	}
	return ExitSuccess
}

func runImmuno(args []string) int {
	fs := flag.NewFlagSet("immuno", flag.ExitOnError)
	var (
		allele       string
		mask         string
		peptidesFile string
	)
	fs.StringVar(&allele, "allele", "", "MHC-I allele selecting the anchor mask")
	fs.StringVar(&mask, "mask", "", "Custom mask positions, e.g. 1,2,9")
	fs.StringVar(&peptidesFile, "peptides", "", "File with one peptide per line ('-' for stdin)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Score peptide immunogenicity with the Calis et al. scheme.

Usage:
  pepscan immuno [options] [<peptide> ...]

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}

	peptides, err := gatherPeptides(nil, peptidesFile, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitError
	}
	for _, arg := range fs.Args() {
		peptides = append(peptides, strings.ToUpper(strings.TrimSpace(arg)))
	}
	if len(peptides) == 0 {
		fs.Usage()
		return ExitUsage
	}

	maskPositions, err := parseMask(mask)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitUsage
	}

	records, failures := immuno.DefaultScale().ScoreAll(peptides, allele, maskPositions)

	w := bufio.NewWriter(os.Stdout)
	fmt.Fprintln(w, "peptide\tallele\timmunogenicity_score\tmasked_positions")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%g\t%s\n", r.Peptide, r.Allele, r.Score, joinInts(r.MaskedPositions))
	}
	w.Flush()

	for _, f := range failures {
		fmt.Fprintf(os.Stderr, "skipped %s: %v\n", f.Peptide, f.Err)
	}
	if len(failures) > 0 && len(records) == 0 {
		return ExitError
	}
	return ExitSuccess
}

func runMethods() int {
	for _, m := range iedb.Methods() {
		fmt.Println(m)
	}
	return ExitSuccess
}

func newLogger(verbose bool) *zap.Logger {
	if verbose {
		l, _ := zap.NewDevelopment()
		return l
	}
	l, _ := zap.NewProduction()
	return l
}

// gatherPeptides expands positional pattern arguments and reads the
// peptides file, in that order. windowLen of 0 keeps sequences unwindowed.
func gatherPeptides(patterns []string, peptidesFile string, windowLen int) ([]string, error) {
	var peptides []string

	for _, arg := range patterns {
		expanded, err := peptide.Expand(arg, windowLen)
		if err != nil {
			return nil, err
		}
		peptides = append(peptides, expanded...)
	}

	if peptidesFile != "" {
		f := os.Stdin
		if peptidesFile != "-" {
			var err error
			f, err = os.Open(peptidesFile)
			if err != nil {
				return nil, fmt.Errorf("open peptides file: %w", err)
			}
			defer f.Close()
		}

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			peptides = append(peptides, strings.ToUpper(line))
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read peptides file: %w", err)
		}
	}

	return peptides, nil
}

func writeResults(results []combine.CombinedResult, outputFile, format string, decimalComma bool) error {
	out := os.Stdout
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	var w output.ResultWriter
	switch format {
	case "tab":
		w = output.NewTabWriter(out)
	case "csv":
		cw, err := output.NewCSVWriter(out, output.CSVOptions{Separator: ',', DecimalComma: decimalComma})
		if err != nil {
			return err
		}
		w = cw
	case "csv2":
		cw, err := output.NewCSVWriter(out, output.CSVOptions{Separator: ';', DecimalComma: true})
		if err != nil {
			return err
		}
		w = cw
	default:
		return fmt.Errorf("unknown output format %q", format)
	}

	if err := w.WriteHeader(); err != nil {
		return err
	}
	for i := range results {
		if err := w.Write(&results[i]); err != nil {
			return err
		}
	}
	return w.Flush()
}

func storeResults(results []combine.CombinedResult, dbPath string) error {
	store, err := duckdb.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.WriteResults(results)
}

func buildCriteria(maxRank, minScore, maxIC50, minImmuno, minComposite float64) combine.Criteria {
	criteria := combine.Criteria{}
	if !math.IsInf(maxRank, 1) {
		criteria["percentile_rank"] = combine.Criterion{Op: combine.OpLT, Threshold: maxRank}
	}
	if !math.IsInf(minScore, -1) {
		criteria["binding_score"] = combine.Criterion{Op: combine.OpGT, Threshold: minScore}
	}
	if !math.IsInf(maxIC50, 1) {
		criteria["ic50"] = combine.Criterion{Op: combine.OpLT, Threshold: maxIC50}
	}
	if !math.IsInf(minImmuno, -1) {
		criteria["immunogenicity_score"] = combine.Criterion{Op: combine.OpGT, Threshold: minImmuno}
	}
	if !math.IsInf(minComposite, -1) {
		criteria["composite_score"] = combine.Criterion{Op: combine.OpGT, Threshold: minComposite}
	}
	return criteria
}

func parseMask(mask string) ([]int, error) {
	if mask == "" {
		return nil, nil
	}
	parts := strings.Split(mask, ",")
	positions := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid mask position %q", p)
		}
		positions = append(positions, n)
	}
	return positions, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
