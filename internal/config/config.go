// Package config parses and validates sortkit's CLI surface into a
// typed Config before any I/O happens, failing fast with a
// ConfigError at configuration time rather than a runtime self-check
// failure.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tailscale/hujson"

	flag "github.com/spf13/pflag"

	"github.com/sortkit/sortkit/pkg/dedup"
	"github.com/sortkit/sortkit/pkg/keycodec"
	"github.com/sortkit/sortkit/pkg/sorterr"
)

// ColumnSpec mirrors one `--columnsIn` group.
type ColumnSpec struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
	Field  int    `json:"field"`
	Format string `json:"format,omitempty"`
}

// OrderSpec mirrors one `--orderBy` group.
type OrderSpec struct {
	ColumnName string `json:"columnName"`
	Direction  string `json:"direction"`
}

// CsvOptions mirrors the `--csv` option group.
type CsvOptions struct {
	Enabled    bool   `json:"enabled,omitempty"`
	Preset     string `json:"preset,omitempty"`
	HasHeader  bool   `json:"header,omitempty"`
	Delimiter  byte   `json:"delimiter,omitempty"`
	Escape     byte   `json:"escape,omitempty"`
	Quote      byte   `json:"quote,omitempty"`
	StrictEsc  bool   `json:"strictEscape,omitempty"`
	StrictSize bool   `json:"strictSize,omitempty"`
	NullString string `json:"nullString,omitempty"`
}

// Config is the fully validated, ready-to-run job description.
type Config struct {
	InputFileNames []string `json:"inputFileName,omitempty"`
	OutputFileName string   `json:"outputFileName,omitempty"`
	Replace        bool     `json:"replace,omitempty"`

	FixedIn          int  `json:"fixedIn,omitempty"`
	FixedOut         int  `json:"fixedOut,omitempty"`
	VariableInput    byte `json:"variableInput,omitempty"`
	VariableOutput   byte `json:"variableOutput,omitempty"`
	HasVariableInput bool `json:"-"`

	ColumnsIn []ColumnSpec `json:"columnsIn,omitempty"`
	OrderBy   []OrderSpec  `json:"orderBy,omitempty"`

	Copy       string `json:"copy,omitempty"`
	Duplicate  string `json:"duplicate,omitempty"`
	Where      []string `json:"where,omitempty"`
	StopWhen   []string `json:"stopWhen,omitempty"`

	RowMax int `json:"rowMax,omitempty"`
	Power  int `json:"power,omitempty"`

	Csv CsvOptions `json:"csv,omitempty"`

	HeaderIn   bool   `json:"headerIn,omitempty"`
	HeaderOut  string `json:"headerOut,omitempty"`
	FormatOut  string `json:"formatOut,omitempty"`
	HexDump    bool   `json:"hexDump,omitempty"`
	Count      bool   `json:"count,omitempty"`
	Sum        string `json:"sum,omitempty"`
	Min        string `json:"min,omitempty"`
	Max        string `json:"max,omitempty"`
	Avg        string `json:"avg,omitempty"`

	WorkDirectory string `json:"workDirectory,omitempty"`
	NoCacheInput  bool   `json:"noCacheInput,omitempty"`
	DiskWork      bool   `json:"diskWork,omitempty"`
	SyntaxOnly    bool   `json:"syntaxOnly,omitempty"`
	Verbose       bool   `json:"verbose,omitempty"`
}

// DefaultConfig holds sortkit's documented default values.
func DefaultConfig() Config {
	return Config{
		Power:         16, // M = 1<<15 = 32768
		Duplicate:     "Original",
		VariableInput: '\n',
		WorkDirectory: os.TempDir(),
	}
}

// Parse reads argv-style args (excluding argv[0]) into a validated
// Config. An optional --jobFile is honored before CLI overrides are
// applied, so a job file supplies the base configuration and any flag
// passed explicitly on the command line wins. The job file itself is
// HUJSON/JSONC rather than plain JSON, since it's meant to be
// hand-edited.
func Parse(args []string) (Config, error) {
	cfg := DefaultConfig()

	fs := flag.NewFlagSet("sortkit", flag.ContinueOnError)

	jobFile := fs.String("jobFile", "", "path to a JSONC job description")
	inputFileNames := fs.StringArray("inputFileName", nil, "input file glob (repeatable)")
	outputFileName := fs.String("outputFileName", "", "output file path")
	replace := fs.Bool("replace", false, "write sorted result back over the input (exactly one --inputFileName)")
	fixedIn := fs.Int("fixedIn", 0, "fixed input record length")
	fixedOut := fs.Int("fixedOut", 0, "fixed output record length")
	variableInput := fs.String("variableInput", "", "input record delimiter byte")
	variableOutput := fs.String("variableOutput", "", "output record delimiter byte")
	columnsIn := fs.StringArray("columnsIn", nil, "column spec: name=N,type=T,offset=O,length=L,field=F,format=FMT (repeatable)")
	orderBy := fs.StringArray("orderBy", nil, "sort key: columnName=N,direction=D (repeatable)")
	cpy := fs.String("copy", "", "ByKey|Original|Reverse")
	duplicate := fs.String("duplicate", "Original", "Original|FirstOnly|LastOnly|Reverse")
	where := fs.StringArray("where", nil, "WHERE predicate (repeatable, all must hold)")
	stopWhen := fs.StringArray("stopWhen", nil, "STOP predicate (repeatable, all must hold)")
	rowMax := fs.Int("rowMax", 0, "planning hint: expected row count")
	power := fs.Int("power", 16, "tournament depth, 2..16")
	csvEnabled := fs.Bool("csv", false, "enable CSV field mode")
	csvHeader := fs.BoolP("csvHeader", "h", false, "CSV: first row is a header")
	csvDelim := fs.StringP("csvDelimiter", "d", ",", "CSV: field delimiter byte")
	csvQuote := fs.StringP("csvQuote", "q", "\"", "CSV: quote byte")
	headerIn := fs.Bool("headerIn", false, "skip the input's header row")
	headerOut := fs.String("headerOut", "", "header row to write to output")
	formatOut := fs.String("formatOut", "", "output record reformat template")
	hexDump := fs.Bool("hexDump", false, "write output as a hex dump")
	count := fs.Bool("count", false, "aggregate: count records")
	sum := fs.String("sum", "", "aggregate: sum each record's leading number (any non-empty value enables it; not a column lookup)")
	minCol := fs.String("min", "", "aggregate: min of each record's leading number (any non-empty value enables it; not a column lookup)")
	maxCol := fs.String("max", "", "aggregate: max of each record's leading number (any non-empty value enables it; not a column lookup)")
	avg := fs.String("avg", "", "aggregate: avg of each record's leading number (any non-empty value enables it; not a column lookup)")
	workDirectory := fs.String("workDirectory", os.TempDir(), "scratch directory for intermediate runs")
	noCacheInput := fs.Bool("noCacheInput", false, "do not memory-cache small inputs")
	diskWork := fs.Bool("diskWork", false, "force on-disk run storage even for small inputs")
	syntaxOnly := fs.Bool("syntaxOnly", false, "validate configuration and exit without running")
	verbose := fs.Bool("verbose", false, "enable debug logging")

	if err := fs.Parse(args); err != nil {
		return Config{}, sorterr.ConfigError("config.Parse", err)
	}

	if *jobFile != "" {
		loaded, err := loadJobFile(*jobFile)
		if err != nil {
			return Config{}, err
		}
		cfg = loaded
	}

	applyFlagOverrides(&cfg, fs, flagValues{
		inputFileNames: inputFileNames, outputFileName: outputFileName, replace: replace,
		fixedIn: fixedIn, fixedOut: fixedOut, variableInput: variableInput, variableOutput: variableOutput,
		columnsIn: columnsIn, orderBy: orderBy, copyMode: cpy, duplicate: duplicate,
		where: where, stopWhen: stopWhen, rowMax: rowMax, power: power,
		csvEnabled: csvEnabled, csvHeader: csvHeader, csvDelim: csvDelim, csvQuote: csvQuote,
		headerIn: headerIn, headerOut: headerOut, formatOut: formatOut, hexDump: hexDump,
		count: count, sum: sum, minCol: minCol, maxCol: maxCol, avg: avg,
		workDirectory: workDirectory, noCacheInput: noCacheInput, diskWork: diskWork,
		syntaxOnly: syntaxOnly, verbose: verbose,
	})

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type flagValues struct {
	inputFileNames                          *[]string
	outputFileName, copyMode, duplicate     *string
	replace, csvHeader                      *bool
	fixedIn, fixedOut, rowMax, power         *int
	variableInput, variableOutput           *string
	columnsIn, orderBy, where, stopWhen     *[]string
	csvEnabled, headerIn, hexDump           *bool
	csvDelim, csvQuote                      *string
	headerOut, formatOut                    *string
	count                                   *bool
	sum, minCol, maxCol, avg                *string
	workDirectory                           *string
	noCacheInput, diskWork, syntaxOnly, verbose *bool
}

// applyFlagOverrides copies only explicitly-set flags onto cfg, so a
// job file's values survive when a flag is left at its zero default.
func applyFlagOverrides(cfg *Config, fs *flag.FlagSet, v flagValues) {
	set := func(name string) bool { return fs.Changed(name) }

	if set("inputFileName") {
		cfg.InputFileNames = *v.inputFileNames
	}
	if set("outputFileName") {
		cfg.OutputFileName = *v.outputFileName
	}
	if set("replace") {
		cfg.Replace = *v.replace
	}
	if set("fixedIn") {
		cfg.FixedIn = *v.fixedIn
	}
	if set("fixedOut") {
		cfg.FixedOut = *v.fixedOut
	}
	if set("variableInput") {
		cfg.VariableInput = delimiterByte(*v.variableInput)
		cfg.HasVariableInput = true
	}
	if set("variableOutput") {
		cfg.VariableOutput = delimiterByte(*v.variableOutput)
	}
	if set("columnsIn") {
		cfg.ColumnsIn = parseColumnSpecs(*v.columnsIn)
	}
	if set("orderBy") {
		cfg.OrderBy = parseOrderSpecs(*v.orderBy)
	}
	if set("copy") {
		cfg.Copy = *v.copyMode
	}
	if set("duplicate") {
		cfg.Duplicate = *v.duplicate
	}
	if set("where") {
		cfg.Where = *v.where
	}
	if set("stopWhen") {
		cfg.StopWhen = *v.stopWhen
	}
	if set("rowMax") {
		cfg.RowMax = *v.rowMax
	}
	if set("power") {
		cfg.Power = *v.power
	}
	if set("csv") {
		cfg.Csv.Enabled = *v.csvEnabled
	}
	if set("csvHeader") {
		cfg.Csv.HasHeader = *v.csvHeader
	}
	if set("csvDelimiter") {
		cfg.Csv.Delimiter = delimiterByte(*v.csvDelim)
	}
	if set("csvQuote") {
		cfg.Csv.Quote = delimiterByte(*v.csvQuote)
	}
	if set("headerIn") {
		cfg.HeaderIn = *v.headerIn
	}
	if set("headerOut") {
		cfg.HeaderOut = *v.headerOut
	}
	if set("formatOut") {
		cfg.FormatOut = *v.formatOut
	}
	if set("hexDump") {
		cfg.HexDump = *v.hexDump
	}
	if set("count") {
		cfg.Count = *v.count
	}
	if set("sum") {
		cfg.Sum = *v.sum
	}
	if set("min") {
		cfg.Min = *v.minCol
	}
	if set("max") {
		cfg.Max = *v.maxCol
	}
	if set("avg") {
		cfg.Avg = *v.avg
	}
	if set("workDirectory") {
		cfg.WorkDirectory = *v.workDirectory
	}
	if set("noCacheInput") {
		cfg.NoCacheInput = *v.noCacheInput
	}
	if set("diskWork") {
		cfg.DiskWork = *v.diskWork
	}
	if set("syntaxOnly") {
		cfg.SyntaxOnly = *v.syntaxOnly
	}
	if set("verbose") {
		cfg.Verbose = *v.verbose
	}
}

func delimiterByte(s string) byte {
	if s == "" {
		return '\n'
	}
	return s[0]
}

func parseColumnSpecs(groups []string) []ColumnSpec {
	specs := make([]ColumnSpec, 0, len(groups))
	for _, g := range groups {
		var c ColumnSpec
		for _, pair := range strings.Split(g, ",") {
			k, val, ok := strings.Cut(pair, "=")
			if !ok {
				continue
			}
			switch k {
			case "name":
				c.Name = val
			case "type":
				c.Type = val
			case "offset":
				c.Offset, _ = strconv.Atoi(val)
			case "length":
				c.Length, _ = strconv.Atoi(val)
			case "field":
				c.Field, _ = strconv.Atoi(val)
			case "format":
				c.Format = val
			}
		}
		specs = append(specs, c)
	}
	return specs
}

func parseOrderSpecs(groups []string) []OrderSpec {
	specs := make([]OrderSpec, 0, len(groups))
	for _, g := range groups {
		var o OrderSpec
		for _, pair := range strings.Split(g, ",") {
			k, val, ok := strings.Cut(pair, "=")
			if !ok {
				continue
			}
			switch k {
			case "columnName":
				o.ColumnName = val
			case "direction":
				o.Direction = val
			}
		}
		specs = append(specs, o)
	}
	return specs
}

func loadJobFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, sorterr.ConfigError("config.loadJobFile", err)
	}
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, sorterr.ConfigError("config.loadJobFile", fmt.Errorf("invalid JSONC in %s: %w", path, err))
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, sorterr.ConfigError("config.loadJobFile", fmt.Errorf("invalid job file %s: %w", path, err))
	}
	return cfg, nil
}

// Validate checks every mutual-exclusion, range, and reference rule
// returning the first violation as a ConfigError.
// It does no I/O: files are neither opened nor statted here.
func (c Config) Validate() error {
	if c.Replace && (c.OutputFileName != "" || len(c.InputFileNames) == 0) {
		return sorterr.ConfigError("config.Validate", fmt.Errorf("--replace is mutually exclusive with --outputFileName and stdin input"))
	}
	if c.FixedIn != 0 && (c.FixedIn < 1 || c.FixedIn > 4096) {
		return sorterr.ConfigError("config.Validate", fmt.Errorf("--fixedIn must be in [1,4096], got %d", c.FixedIn))
	}
	if c.FixedOut != 0 && (c.FixedOut < 1 || c.FixedOut > 4096) {
		return sorterr.ConfigError("config.Validate", fmt.Errorf("--fixedOut must be in [1,4096], got %d", c.FixedOut))
	}
	if c.FixedOut != 0 && c.VariableOutput != 0 {
		return sorterr.ConfigError("config.Validate", fmt.Errorf("--fixedOut is mutually exclusive with --variableOutput"))
	}

	if c.Power < 2 || c.Power > 16 {
		return sorterr.ConfigError("config.Validate", fmt.Errorf("--power must be in [2,16], got %d", c.Power))
	}

	// A --rowMax that cannot fit within the chosen --power's leaf
	// capacity across a bounded number of merge passes is rejected
	// here, not discovered later via the final pass's ordering
	// self-check.
	if c.RowMax > 0 {
		m := 1 << (c.Power - 1)
		maxReachable := m
		const maxPasses = 6 // bounds pathological fan-in configs
		for pass := 0; pass < maxPasses && maxReachable < c.RowMax; pass++ {
			maxReachable *= m
		}
		if maxReachable < c.RowMax {
			return sorterr.ConfigError("config.Validate", fmt.Errorf(
				"--rowMax %d cannot be satisfied by --power %d (M=%d) within %d merge passes",
				c.RowMax, c.Power, m, maxPasses))
		}
	}

	switch c.Copy {
	case "", "ByKey", "Original", "Reverse":
	default:
		return sorterr.ConfigError("config.Validate", fmt.Errorf("--copy must be ByKey|Original|Reverse, got %q", c.Copy))
	}

	switch c.Duplicate {
	case "Original", "FirstOnly", "LastOnly", "Reverse":
	default:
		return sorterr.ConfigError("config.Validate", fmt.Errorf("--duplicate must be Original|FirstOnly|LastOnly|Reverse, got %q", c.Duplicate))
	}

	if len(c.OrderBy) == 0 && c.Copy == "" {
		return sorterr.ConfigError("config.Validate", fmt.Errorf("at least one --orderBy key or --copy mode is required"))
	}

	columnNames := make(map[string]bool, len(c.ColumnsIn))
	for _, col := range c.ColumnsIn {
		columnNames[col.Name] = true
	}
	for _, ord := range c.OrderBy {
		if !columnNames[ord.ColumnName] {
			return sorterr.ConfigError("config.Validate", fmt.Errorf("--orderBy references unknown column %q", ord.ColumnName))
		}
		switch strings.ToUpper(ord.Direction) {
		case "ASC", "DESC", "AASC", "ADESC":
		default:
			return sorterr.ConfigError("config.Validate", fmt.Errorf("--orderBy direction must be ASC|DESC|AASC|ADESC, got %q", ord.Direction))
		}
	}

	for _, col := range c.ColumnsIn {
		if _, err := ParseKeyType(col.Type); err != nil {
			return sorterr.ConfigError("config.Validate", fmt.Errorf("--columnsIn %q: %w", col.Name, err))
		}
	}

	return nil
}

// ParseKeyType maps a --columnsIn type string to keycodec's Type enum.
func ParseKeyType(name string) (keycodec.Type, error) {
	switch strings.ToLower(name) {
	case "string":
		return keycodec.String, nil
	case "byte":
		return keycodec.Byte, nil
	case "int":
		return keycodec.Int, nil
	case "uint":
		return keycodec.UInt, nil
	case "float":
		return keycodec.Float, nil
	case "double":
		return keycodec.Double, nil
	case "date":
		return keycodec.Date, nil
	case "csvfield":
		return keycodec.CsvField, nil
	default:
		return 0, fmt.Errorf("unknown column type %q", name)
	}
}

// ParseDirection maps an --orderBy direction string to keycodec's enum.
func ParseDirection(name string) keycodec.Direction {
	switch strings.ToUpper(name) {
	case "DESC":
		return keycodec.DESC
	case "AASC":
		return keycodec.AASC
	case "ADESC":
		return keycodec.ADESC
	default:
		return keycodec.ASC
	}
}

// DuplicateDisposition maps the validated --duplicate flag to dedup's type.
func (c Config) DuplicateDisposition() dedup.Disposition {
	switch c.Duplicate {
	case "FirstOnly":
		return dedup.FirstOnly
	case "LastOnly":
		return dedup.LastOnly
	case "Reverse":
		return dedup.Reverse
	default:
		return dedup.Original
	}
}
