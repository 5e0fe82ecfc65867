// Command sortkit is the CLI entry point: it wires internal/config's
// validated Config into pkg/input, pkg/keycodec, pkg/merge, pkg/dedup,
// and pkg/output to run one external sort/merge/copy job.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sortkit/sortkit/internal/config"
	"github.com/sortkit/sortkit/internal/logging"
	"github.com/sortkit/sortkit/internal/predicate"
	"github.com/sortkit/sortkit/internal/workdir"
	"github.com/sortkit/sortkit/pkg/aggregate"
	"github.com/sortkit/sortkit/pkg/dedup"
	"github.com/sortkit/sortkit/pkg/input"
	"github.com/sortkit/sortkit/pkg/keycodec"
	"github.com/sortkit/sortkit/pkg/merge"
	"github.com/sortkit/sortkit/pkg/output"
	"github.com/sortkit/sortkit/pkg/proxy"
	"github.com/sortkit/sortkit/pkg/segment"
	"github.com/sortkit/sortkit/pkg/sorterr"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "sortkit:", err)
		if sorterr.Is(err, sorterr.Config) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Parse(args)
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Verbose)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck // best-effort flush on exit

	if cfg.SyntaxOnly {
		log.Info("configuration is valid")
		return nil
	}

	job, err := newJob(cfg, log)
	if err != nil {
		return err
	}
	defer job.close()

	return job.run()
}

// job holds every opened resource for one run so close() can release
// them uniformly regardless of where the run fails.
type job struct {
	cfg         config.Config
	log         logSink
	inputs      []*os.File
	stage       *input.Stage
	codec       *keycodec.Codec
	dir         *workdir.Dir
	store       segment.Store
	pool        *proxy.Pool
	outW        io.WriteCloser
	replaceTemp string
}

// logSink keeps main.go decoupled from the exact zap type name;
// internal/logging is the only place that imports zap.
type logSink interface {
	Infow(msg string, kv ...interface{})
	Debugw(msg string, kv ...interface{})
	Errorw(msg string, kv ...interface{})
	Sync() error
}

func newJob(cfg config.Config, log logSink) (*job, error) {
	j := &job{cfg: cfg, log: log}

	inputs, err := openInputs(cfg.InputFileNames)
	if err != nil {
		return nil, sorterr.InputError("main.openInputs", err)
	}
	j.inputs = inputs

	codec, err := buildCodec(cfg)
	if err != nil {
		return nil, err
	}
	j.codec = codec

	reader, err := buildReader(cfg, inputs)
	if err != nil {
		return nil, err
	}

	opts, err := buildStageOptions(cfg)
	if err != nil {
		return nil, err
	}
	j.stage = input.New(reader, codec, opts...)

	dir, err := workdir.Open(cfg.WorkDirectory)
	if err != nil {
		return nil, sorterr.InternalError("main.workdir.Open", err)
	}
	j.dir = dir

	if cfg.DiskWork {
		runFile, err := dir.NewRunFile()
		if err != nil {
			return nil, sorterr.InternalError("main.workdir.NewRunFile", err)
		}
		workPath := runFile.Name()
		_ = runFile.Close()
		store, err := segment.NewDiskStore(workPath)
		if err != nil {
			return nil, sorterr.InternalError("main.segment.NewDiskStore", err)
		}
		j.store = store
	} else {
		j.store = segment.NewMemoryStore()
	}

	j.pool = proxy.NewPool(initialPoolCapacity(cfg))

	outW, replaceTemp, err := buildOutput(cfg)
	if err != nil {
		return nil, err
	}
	j.outW = outW
	j.replaceTemp = replaceTemp

	return j, nil
}

func (j *job) close() {
	if j.stage != nil {
		_ = j.stage.Close()
	}
	if j.store != nil {
		_ = j.store.Close()
	}
	if j.outW != nil {
		_ = j.outW.Close()
	}
}

func (j *job) run() error {
	orch := &merge.Orchestrator{Depth: j.cfg.Power, Store: j.store, Pool: j.pool}
	filter := dedup.New(j.cfg.DuplicateDisposition())

	source := &multiFileSource{files: j.inputs}

	var outOpts []output.Option
	if j.cfg.HeaderOut != "" {
		outOpts = append(outOpts, output.WithHeader([]byte(j.cfg.HeaderOut)))
	}
	if j.cfg.HexDump {
		outOpts = append(outOpts, output.WithHexDump(true))
	}
	if j.cfg.VariableOutput != 0 {
		outOpts = append(outOpts, output.WithDelimiter(j.cfg.VariableOutput))
	}

	outStage := output.New(source, j.outW, outOpts...)
	if err := outStage.Open(); err != nil {
		return sorterr.OutputError("main.output.Open", err)
	}

	var aggPipeline *aggregate.Pipeline
	if j.cfg.Count || j.cfg.Sum != "" || j.cfg.Min != "" || j.cfg.Max != "" || j.cfg.Avg != "" {
		aggPipeline = buildAggregatePipeline(j.cfg)
	}

	publish := func(pr *proxy.Proxy) error {
		ok, err := outStage.Publish(pr)
		if err != nil {
			return sorterr.OutputError("main.output.Publish", err)
		}
		if !ok {
			return sorterr.InternalError("main.output.Publish", fmt.Errorf("final pass emitted an out-of-order record"))
		}
		if aggPipeline != nil {
			raw, err := source.ReadAt(pr.SourceIndex, pr.Position, pr.Size)
			if err != nil {
				return sorterr.OutputError("main.aggregate.ReadAt", err)
			}
			if err := aggPipeline.Feed(pr, raw); err != nil {
				return sorterr.OutputError("main.aggregate.Feed", err)
			}
		}
		return nil
	}

	if err := orch.Run(j.stage, filter, publish); err != nil {
		return err
	}

	if aggPipeline != nil {
		for name, value := range aggPipeline.Results() {
			j.log.Infow("aggregate result", "reducer", name, "value", value)
		}
	}

	if j.cfg.Replace {
		if err := finishReplace(j.cfg, j.replaceTemp); err != nil {
			return sorterr.OutputError("main.finishReplace", err)
		}
	}

	counters := j.stage.Counters()
	j.log.Infow("run complete",
		"selected", counters.Selected, "filtered", counters.Filtered,
		"comparisons", j.pool.Comparisons(), "dedupStats", filter.Stats())

	return nil
}

func openInputs(globs []string) ([]*os.File, error) {
	if len(globs) == 0 {
		return nil, fmt.Errorf("stdin input is not yet wired for re-readable OutputStage; supply --inputFileName")
	}
	var files []*os.File
	for _, pattern := range globs {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			matches = []string{pattern}
		}
		for _, path := range matches {
			f, err := os.Open(path)
			if err != nil {
				for _, opened := range files {
					_ = opened.Close()
				}
				return nil, fmt.Errorf("open %q: %w", path, err)
			}
			files = append(files, f)
		}
	}
	return files, nil
}

// buildCodec builds the KeyCodec driving the sort. When --orderBy
// declares keys, those columns win regardless of --copy. Otherwise
// ("no keys mode") --copy selects the key: ByKey sorts on the whole
// raw record, Original/Reverse leave Parts empty so every record ties
// on an empty key and ordering falls entirely to Proxy's ordinal
// tie-break — Original via the input's natural ascending ordinals,
// Reverse via the ordinal negation wired in buildOrdinalTransform.
func buildCodec(cfg config.Config) (*keycodec.Codec, error) {
	if len(cfg.OrderBy) == 0 {
		if cfg.Copy == "ByKey" {
			direction := keycodec.ASC
			if cfg.DuplicateDisposition().InvertsKeyDirection() {
				direction = direction.Invert()
			}
			return &keycodec.Codec{Parts: []keycodec.KeyPart{{Type: keycodec.RawBytes, Direction: direction}}}, nil
		}
		return &keycodec.Codec{}, nil
	}

	byName := make(map[string]config.ColumnSpec, len(cfg.ColumnsIn))
	for _, c := range cfg.ColumnsIn {
		byName[c.Name] = c
	}

	disp := cfg.DuplicateDisposition()

	parts := make([]keycodec.KeyPart, 0, len(cfg.OrderBy))
	for _, ord := range cfg.OrderBy {
		col, ok := byName[ord.ColumnName]
		if !ok {
			return nil, sorterr.ConfigError("main.buildCodec", fmt.Errorf("orderBy references unknown column %q", ord.ColumnName))
		}
		typ, err := config.ParseKeyType(col.Type)
		if err != nil {
			return nil, sorterr.ConfigError("main.buildCodec", err)
		}
		direction := config.ParseDirection(ord.Direction)
		if disp.InvertsKeyDirection() {
			direction = direction.Invert()
		}
		parts = append(parts, keycodec.KeyPart{
			Type:        typ,
			Offset:      col.Offset,
			Length:      col.Length,
			Direction:   direction,
			ParseFormat: col.Format,
			FieldNumber: col.Field,
			ColumnName:  col.Name,
		})
	}

	return &keycodec.Codec{Parts: parts}, nil
}

func buildReader(cfg config.Config, files []*os.File) (input.Reader, error) {
	closers := make([]io.ReadCloser, len(files))
	for i, f := range files {
		closers[i] = f
	}

	switch {
	case cfg.FixedIn > 0:
		return input.NewFixedReader(closers, cfg.FixedIn), nil
	default:
		delim := cfg.VariableInput
		if !cfg.HasVariableInput {
			delim = '\n'
		}
		return input.NewLineReader(closers, delim), nil
	}
}

func buildStageOptions(cfg config.Config) ([]input.Option, error) {
	var opts []input.Option

	if cfg.Csv.Enabled {
		delim := rune(cfg.Csv.Delimiter)
		if delim == 0 {
			delim = ','
		}
		opts = append(opts, input.WithColumnSplitter(input.CsvSplitter{Delimiter: delim, Quote: rune(cfg.Csv.Quote)}))
	}

	if cfg.HeaderIn || cfg.Csv.HasHeader {
		opts = append(opts, input.WithHeaderRows(1))
	}

	where, err := buildEvaluators(cfg.Where)
	if err != nil {
		return nil, err
	}
	if len(where) > 0 {
		opts = append(opts, input.WithWhere(where...))
	}

	stop, err := buildEvaluators(cfg.StopWhen)
	if err != nil {
		return nil, err
	}
	if len(stop) > 0 {
		opts = append(opts, input.WithStop(stop...))
	}

	if cfg.RowMax > 0 {
		opts = append(opts, input.WithMaxRowsHint(int64(cfg.RowMax)))
	}

	if xform := buildOrdinalTransform(cfg); xform != nil {
		opts = append(opts, input.WithOrdinalTransform(xform))
	}

	return opts, nil
}

// buildOrdinalTransform composes the two independent sources of
// ordinal negation: the --duplicate disposition's
// NegatesOrdinal/AdjustOrdinal convention (LastOnly, Reverse), and
// --copy Reverse's "no keys mode" request to emit in reverse input
// order, which (with an empty KeyCodec so every record ties on key)
// reduces to negating ordinals the same way. Returns nil if neither
// applies.
func buildOrdinalTransform(cfg config.Config) input.OrdinalTransform {
	disp := cfg.DuplicateDisposition()
	copyReverse := len(cfg.OrderBy) == 0 && cfg.Copy == "Reverse"

	if !disp.NegatesOrdinal() && !copyReverse {
		return nil
	}

	return func(ordinal int64) int64 {
		ordinal = dedup.AdjustOrdinal(disp, ordinal)
		if copyReverse {
			ordinal = -ordinal
		}
		return ordinal
	}
}

func buildEvaluators(equations []string) ([]input.Evaluator, error) {
	evals := make([]input.Evaluator, 0, len(equations))
	for _, eq := range equations {
		e, err := predicate.Parse(eq)
		if err != nil {
			return nil, sorterr.PredicateError("main.buildEvaluators", err)
		}
		evals = append(evals, e)
	}
	return evals, nil
}

func buildOutput(cfg config.Config) (io.WriteCloser, string, error) {
	if cfg.Replace {
		if len(cfg.InputFileNames) != 1 {
			return nil, "", sorterr.ConfigError("main.buildOutput", fmt.Errorf("--replace requires exactly one --inputFileName"))
		}
		tempPath := cfg.InputFileNames[0] + ".sortkit.tmp"
		f, err := os.Create(tempPath)
		if err != nil {
			return nil, "", sorterr.OutputError("main.buildOutput", err)
		}
		return f, tempPath, nil
	}

	if cfg.OutputFileName == "" {
		return os.Stdout, "", nil
	}

	f, err := os.Create(cfg.OutputFileName)
	if err != nil {
		return nil, "", sorterr.OutputError("main.buildOutput", err)
	}
	return f, "", nil
}

// finishReplace performs the "temp-then-rename" in-place rewrite
// --replace needs: on rename failure the temp file is retained and
// the error is fatal.
func finishReplace(cfg config.Config, tempPath string) error {
	target := cfg.InputFileNames[0]
	if err := os.Rename(tempPath, target); err != nil {
		return fmt.Errorf("rename %s over %s (temp file retained): %w", tempPath, target, err)
	}
	return nil
}

func initialPoolCapacity(cfg config.Config) int {
	m := 1 << (cfg.Power - 1)
	return 2 * m
}

func buildAggregatePipeline(cfg config.Config) *aggregate.Pipeline {
	extract := func(pr *proxy.Proxy, raw []byte) (float64, error) {
		var v float64
		_, err := fmt.Sscanf(string(raw), "%g", &v)
		return v, err
	}

	var reducers []aggregate.Reducer
	if cfg.Count {
		reducers = append(reducers, aggregate.NewCount())
	}
	if cfg.Sum != "" {
		reducers = append(reducers, aggregate.NewSum())
	}
	if cfg.Min != "" {
		reducers = append(reducers, aggregate.NewMin())
	}
	if cfg.Max != "" {
		reducers = append(reducers, aggregate.NewMax())
	}
	if cfg.Avg != "" {
		reducers = append(reducers, aggregate.NewAvg())
	}

	return aggregate.NewPipeline(extract, reducers...)
}

// multiFileSource implements output.SourceReader by random-accessing
// the already-open input files via io.ReaderAt, the same files the
// sequential InputStage Reader consumed to build proxies.
type multiFileSource struct {
	files []*os.File
}

func (s *multiFileSource) ReadAt(sourceIndex int, position int64, size int) ([]byte, error) {
	if sourceIndex < 0 || sourceIndex >= len(s.files) {
		return nil, fmt.Errorf("source index %d out of range", sourceIndex)
	}
	buf := make([]byte, size)
	if _, err := s.files[sourceIndex].ReadAt(buf, position); err != nil {
		return nil, err
	}
	return buf, nil
}
