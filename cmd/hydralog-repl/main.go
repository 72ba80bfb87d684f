// hydralog-repl is an interactive shell for exploring and appending to
// tsv0/tsv1 log files.
//
// Usage:
//
//	hydralog-repl open <path>                  Open an existing file for reading
//	hydralog-repl append <path>                 Open an existing file for appending
//	hydralog-repl create <path> <format> <fields...>  Create a new file
//
// Commands (in REPL):
//
//	next                  Decode and print the next record
//	seek <epoch>          Reposition to the first record at/after epoch
//	last                  Jump to and print the final record
//	log <level> <msg...>  Append a record (append/create mode only)
//	info                  Show file path, format, and declared fields
//	help                  Show this help
//	exit / quit / q       Exit
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/calvinalkan/hydralog"
	"github.com/calvinalkan/hydralog/internal/codec"
	"github.com/peterh/liner"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 3 {
		printUsage()

		return errors.New("missing command or file path")
	}

	switch os.Args[1] {
	case "open":
		return runOpen(os.Args[2])
	case "append":
		return runAppend(os.Args[2])
	case "create":
		return runCreate(os.Args[2:])
	default:
		printUsage()

		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  hydralog-repl open <path>")
	fmt.Fprintln(os.Stderr, "  hydralog-repl append <path>")
	fmt.Fprintln(os.Stderr, "  hydralog-repl create <path> <tsv0|tsv1> <field> [field...]")
}

func runOpen(path string) error {
	r, err := hydralog.OpenFile(path, hydralog.ReaderOptions{})
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}

	defer r.Close()

	repl := &REPL{path: path, reader: r, format: r.Format(), fields: r.Fields()}

	return repl.Run()
}

func runAppend(path string) error {
	w, err := hydralog.Append(path, hydralog.WriterSpec{})
	if err != nil {
		return fmt.Errorf("opening %s for append: %w", path, err)
	}

	defer w.Close()

	r, err := hydralog.OpenFile(path, hydralog.ReaderOptions{})
	if err != nil {
		return fmt.Errorf("opening %s for read: %w", path, err)
	}

	defer r.Close()

	repl := &REPL{path: path, reader: r, writer: w, format: r.Format(), fields: r.Fields()}

	return repl.Run()
}

func runCreate(args []string) error {
	if len(args) < 3 {
		printUsage()

		return errors.New("create needs a path, a format, and at least one field name")
	}

	path := args[0]

	format, err := hydralog.ParseFormat(args[1])
	if err != nil {
		return err
	}

	names := args[2:]

	w, err := hydralog.Create(path, hydralog.WriterSpec{
		Format: format,
		Fields: fieldSpecs(names),
	})
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}

	defer w.Close()

	r, err := hydralog.OpenFile(path, hydralog.ReaderOptions{})
	if err != nil {
		return fmt.Errorf("reopening %s for read: %w", path, err)
	}

	defer r.Close()

	repl := &REPL{path: path, reader: r, writer: w, format: format, fields: names}

	return repl.Run()
}

func fieldSpecs(names []string) []codec.FieldSpec {
	specs := make([]codec.FieldSpec, len(names))
	for i, n := range names {
		specs[i] = codec.FieldSpec{Name: n}
	}

	return specs
}

// REPL is the interactive command loop. writer is nil in read-only mode.
type REPL struct {
	path   string
	reader *hydralog.Reader
	writer *hydralog.Writer
	format hydralog.Format
	fields []string
	liner  *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".hydralog_history")
}

// Run starts the REPL loop.
func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	mode := "read-only"
	if r.writer != nil {
		mode = "append"
	}

	fmt.Printf("hydralog-repl - %s (%s, %s)\n", r.path, r.format, mode)
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("hydralog> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println("\nBye!")

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			r.saveHistory()

			return nil

		case "help", "?":
			r.printHelp()

		case "next":
			r.cmdNext()

		case "seek":
			r.cmdSeek(args)

		case "last":
			r.cmdLast()

		case "log":
			r.cmdLog(args)

		case "info":
			r.cmdInfo()

		case "clear", "cls":
			fmt.Print("\033[H\033[2J")

		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()

	return nil
}

func (r *REPL) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			r.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (r *REPL) completer(line string) []string {
	commands := []string{"next", "seek", "last", "log", "info", "help", "exit"}

	var out []string

	for _, c := range commands {
		if strings.HasPrefix(c, line) {
			out = append(out, c)
		}
	}

	return out
}

func (r *REPL) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  next                  decode and print the next record")
	fmt.Println("  seek <epoch>          reposition to the first record at/after epoch")
	fmt.Println("  last                  jump to and print the final record")
	fmt.Println("  log <level> <msg...>  append a record (append/create mode only)")
	fmt.Println("  info                  show path, format, and declared fields")
	fmt.Println("  exit / quit / q       exit")
}

func (r *REPL) cmdNext() {
	rec, err := r.reader.Next()
	if err != nil {
		if errors.Is(err, hydralog.ErrNoRecord) {
			fmt.Println("(no more records)")

			return
		}

		fmt.Println("error:", err)

		return
	}

	fmt.Println(rec.String())
}

func (r *REPL) cmdSeek(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: seek <epoch>")

		return
	}

	epoch, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		fmt.Println("error: invalid epoch:", err)

		return
	}

	err = r.reader.Seek(epoch)
	if err != nil && !errors.Is(err, hydralog.ErrAtStart) {
		fmt.Println("error:", err)

		return
	}

	if errors.Is(err, hydralog.ErrAtStart) {
		fmt.Println("(target is at or before the file's start_epoch; positioned at start)")
	}
}

func (r *REPL) cmdLast() {
	rec, err := r.reader.SeekLast()
	if err != nil {
		fmt.Println("error:", err)

		return
	}

	fmt.Println(rec.String())
}

func (r *REPL) cmdLog(args []string) {
	if r.writer == nil {
		fmt.Println("error: file was opened read-only; use 'append' or 'create' mode")

		return
	}

	if len(args) < 2 {
		fmt.Println("usage: log <level> <message...>")

		return
	}

	level := strings.ToUpper(args[0])
	message := strings.Join(args[1:], " ")

	var err error

	switch level {
	case "TRACE":
		err = r.writer.Trace(message)
	case "DEBUG":
		err = r.writer.Debug(message)
	case "INFO":
		err = r.writer.Info(message)
	case "WARN", "WARNING":
		err = r.writer.Warn(message)
	case "ERROR":
		err = r.writer.Error(message)
	case "CRIT", "CRITICAL":
		err = r.writer.Crit(message)
	case "ALERT":
		err = r.writer.Alert(message)
	case "EMERG", "EMERGENCY":
		err = r.writer.Emerg(message)
	default:
		fmt.Printf("unknown level %q\n", args[0])

		return
	}

	if err != nil {
		fmt.Println("error:", err)
	}
}

func (r *REPL) cmdInfo() {
	fmt.Printf("path:   %s\n", r.path)
	fmt.Printf("format: %s\n", r.format)
	fmt.Printf("fields: %s\n", strings.Join(r.fields, ", "))

	if r.writer != nil {
		fmt.Println("mode:   append")
	} else {
		fmt.Println("mode:   read-only")
	}
}
