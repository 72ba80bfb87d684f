// hydralog-dump renders one or more tsv0/tsv1 log files as tab-separated
// text or JSON lines, merging multiple files into a single time-ordered
// stream.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/calvinalkan/hydralog"
	"github.com/spf13/pflag"
)

// recordSource is the subset of *hydralog.Reader and *hydralog.MergeReader
// hydralog-dump needs; it lets the dump loop below stay agnostic to
// whether it's draining one file or a merged set.
type recordSource interface {
	Next() (hydralog.Record, error)
	Seek(epoch float64) error
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("hydralog-dump", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)

	outFormat := fs.StringP("out-format", "o", "", "output format: tsv or json (default tsv)")
	fieldList := fs.StringP("fields", "f", "", "comma-separated field names to include (default: all declared fields)")
	configPath := fs.StringP("config", "c", "", "explicit config file (JSONC)")
	since := fs.Float64("since", 0, "skip to the first record at or after this unix epoch")

	usage := func() {
		fmt.Fprintln(stderr, "Usage: hydralog-dump [flags] FILE [FILE...]")
		fmt.Fprintln(stderr, "       hydralog-dump [flags] -              (read from stdin)")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Flags:")

		var buf strings.Builder

		fs.SetOutput(&buf)
		fs.PrintDefaults()
		fmt.Fprint(stderr, buf.String())
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			usage()
			return 0
		}

		fmt.Fprintln(stderr, "error:", err)

		return 1
	}

	paths := fs.Args()
	if len(paths) == 0 {
		usage()
		fmt.Fprintln(stderr, "error: at least one log file required")

		return 1
	}

	workDir, err := os.Getwd()
	if err != nil {
		workDir = "."
	}

	cfg, err := loadConfig(workDir, *configPath)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)

		return 1
	}

	resolvedFormat := cfg.OutFormat
	if fs.Changed("out-format") {
		resolvedFormat = *outFormat
	}

	if resolvedFormat == "" {
		resolvedFormat = "tsv"
	}

	if resolvedFormat != "tsv" && resolvedFormat != "json" {
		fmt.Fprintf(stderr, "error: unknown --out-format %q (want tsv or json)\n", resolvedFormat)

		return 1
	}

	resolvedFields := cfg.Fields
	if fs.Changed("fields") {
		resolvedFields = splitFields(*fieldList)
	}

	readers := make([]*hydralog.Reader, 0, len(paths))

	defer func() {
		for _, r := range readers {
			_ = r.Close()
		}
	}()

	for _, p := range paths {
		r, err := openSource(p)
		if err != nil {
			fmt.Fprintf(stderr, "error: opening %s: %v\n", p, err)

			return 2
		}

		readers = append(readers, r)
	}

	fields := resolvedFields
	if len(fields) == 0 {
		fields = readers[0].Fields()
	}

	var source recordSource

	if len(readers) == 1 {
		source = readers[0]
	} else {
		source = hydralog.NewMergeReader(readers...)
	}

	if fs.Changed("since") {
		if err := source.Seek(*since); err != nil && !errors.Is(err, hydralog.ErrAtStart) {
			fmt.Fprintln(stderr, "error: seeking:", err)

			return 2
		}
	}

	dumper := dumperFor(resolvedFormat, fields, stdout)

	if err := dumpAll(source, dumper); err != nil {
		fmt.Fprintln(stderr, "error:", err)

		return 2
	}

	return 0
}

// openSource opens path for reading, treating "-" as stdin. Stdin is opened
// without a path so OpenFile's sidecar-index lookup never runs against it.
func openSource(path string) (*hydralog.Reader, error) {
	if path == "-" {
		return hydralog.Open(os.Stdin, hydralog.ReaderOptions{})
	}

	return hydralog.OpenFile(path, hydralog.ReaderOptions{})
}

func dumpAll(source recordSource, dump func(hydralog.Record) error) error {
	for {
		rec, err := source.Next()
		if err != nil {
			if errors.Is(err, hydralog.ErrNoRecord) {
				return nil
			}

			return err
		}

		if err := dump(rec); err != nil {
			return err
		}
	}
}

// dumperFor returns the per-record emission function for the requested
// output format, restricted to the given field names.
func dumperFor(format string, fields []string, out io.Writer) func(hydralog.Record) error {
	if format == "json" {
		return func(rec hydralog.Record) error {
			return dumpJSON(rec, fields, out)
		}
	}

	fmt.Fprintln(out, strings.Join(append([]string{"timestamp"}, fields...), "\t"))

	return func(rec hydralog.Record) error {
		return dumpTSV(rec, fields, out)
	}
}

func dumpTSV(rec hydralog.Record, fields []string, out io.Writer) error {
	cols := make([]string, 0, len(fields)+1)
	cols = append(cols, rec.TimestampUTC().Format(time.RFC3339Nano))

	for _, name := range fields {
		v, err := rec.Field(name)
		if err != nil {
			return err
		}

		cols = append(cols, v)
	}

	_, err := fmt.Fprintln(out, strings.Join(cols, "\t"))

	return err
}

func dumpJSON(rec hydralog.Record, fields []string, out io.Writer) error {
	row := make(map[string]string, len(fields)+1)
	row["timestamp"] = rec.TimestampUTC().Format(time.RFC3339Nano)

	for _, name := range fields {
		v, err := rec.Field(name)
		if err != nil {
			return err
		}

		row[name] = v
	}

	enc := json.NewEncoder(out)

	return enc.Encode(row)
}
