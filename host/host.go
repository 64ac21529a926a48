package host

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/beevik/cmd"
	log "github.com/sirupsen/logrus"

	"github.com/mipsasm/mipsasm/asm"
	"github.com/mipsasm/mipsasm/pseudoop"
)

// errQuit signals RunCommands to exit its loop, mirroring go6502's
// cmdQuit returning a plain error to break out of the read loop.
var errQuit = errors.New("exiting program")

type state byte

const (
	stateProcessingCommands state = iota
	stateCollectingSource
)

// Host drives the assembler pipeline from a line-oriented command
// stream, the way beevik/go6502's host.Host drives its CPU debugger.
// Instead of CPU registers and breakpoints, a Host here tracks the
// current pseudo-op catalog and the most recently produced
// BinaryImage, which the symbols/relocations/sourcemap commands report
// on.
type Host struct {
	input       *bufio.Scanner
	output      *bufio.Writer
	interactive bool
	state       state

	logger   *log.Logger
	table    *pseudoop.Table
	settings *settings

	lastCmd    *cmd.Selection
	lastImage  *asm.BinaryImage
	lastSource string // logical name of the source that produced lastImage

	collecting []string
}

// New creates a Host with the bundled pseudo-op catalog and default
// settings.
func New() *Host {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return &Host{
		state:    stateProcessingCommands,
		logger:   logger,
		table:    pseudoop.Default(),
		settings: newSettings(),
	}
}

// AssembleFile assembles a single file non-interactively, mirroring
// go6502's Host.AssembleFile convenience entry point.
func (h *Host) AssembleFile(filename string) error {
	h.output = bufio.NewWriter(os.Stdout)
	h.interactive = false
	return h.assembleFile(filename)
}

// RunCommands reads commands from r, one per line, writing responses
// to w. When interactive is true a prompt is displayed before each
// read, exactly as go6502's Host.RunCommands does for its REPL.
func (h *Host) RunCommands(r io.Reader, w io.Writer, interactive bool) {
	h.input = bufio.NewScanner(r)
	h.input.Buffer(make([]byte, 0, 64*1024), 1<<20)
	h.output = bufio.NewWriter(w)
	h.interactive = interactive

	for {
		h.prompt()

		line, err := h.getLine()
		if err != nil {
			break
		}

		switch h.state {
		case stateProcessingCommands:
			err = h.processCommand(line)
		case stateCollectingSource:
			err = h.processSourceLine(line)
		default:
			panic("invalid state")
		}

		if err != nil {
			break
		}
	}
}

func (h *Host) processCommand(line string) error {
	var c cmd.Selection
	if line != "" {
		var err error
		c, err = cmds.Lookup(line)
		switch {
		case err == cmd.ErrNotFound:
			h.println("Command not found.")
			return nil
		case err == cmd.ErrAmbiguous:
			h.println("Command is ambiguous.")
			return nil
		case err != nil:
			h.printf("ERROR: %v.\n", err)
			return nil
		}
	} else if h.lastCmd != nil {
		c = *h.lastCmd
	}

	if c.Command == nil {
		return nil
	}
	if c.Command.Data == nil && c.Command.Subtree != nil {
		h.displayCommands(c.Command.Subtree)
		return nil
	}

	h.lastCmd = &c

	handler := c.Command.Data.(func(*Host, cmd.Selection) error)
	return handler(h, c)
}

// processSourceLine accumulates lines typed after "assemble stdin",
// ending the collection on a line consisting only of "END" (case
// insensitive), the same sentinel go6502's interactive mini-assembler
// uses.
func (h *Host) processSourceLine(line string) error {
	if strings.EqualFold(strings.TrimSpace(line), "end") {
		return h.finishCollectingSource()
	}
	h.collecting = append(h.collecting, line)
	return nil
}

func (h *Host) finishCollectingSource() error {
	defer func() {
		h.collecting = nil
		h.state = stateProcessingCommands
	}()

	source := strings.Join(h.collecting, "\n")
	h.assembleAndReport(source, "<stdin>")
	return nil
}

func (h *Host) printf(format string, args ...any) {
	fmt.Fprintf(h.output, format, args...)
	h.output.Flush()
}

func (h *Host) println(args ...any) {
	fmt.Fprintln(h.output, args...)
	h.output.Flush()
}

func (h *Host) getLine() (string, error) {
	if h.input.Scan() {
		return h.input.Text(), nil
	}
	if h.input.Err() != nil {
		return "", h.input.Err()
	}
	return "", io.EOF
}

func (h *Host) prompt() {
	if !h.interactive {
		return
	}
	switch h.state {
	case stateProcessingCommands:
		h.printf("* ")
	case stateCollectingSource:
		h.printf("%2d  ", len(h.collecting)+1)
	}
}

func (h *Host) options() asm.Options {
	opts := asm.DefaultOptions()
	opts.BaseDir = h.settings.BaseDir
	opts.EnablePseudoInstructions = h.settings.EnablePseudoInstructions
	opts.DelayedBranchingEnabled = h.settings.DelayedBranchingEnabled
	opts.PseudoExpander = h.table
	opts.Logger = h.logger
	opts.IncludeResolver = h.resolveInclude
	return opts
}

func (h *Host) resolveInclude(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (h *Host) onSettingsUpdate() {
	if h.settings.Verbose {
		h.logger.SetLevel(log.DebugLevel)
	} else {
		h.logger.SetLevel(log.PanicLevel)
	}
}

// assembleAndReport runs the pipeline against source and prints a
// one-line summary, storing the image on success so that symbols,
// relocations, and sourcemap write have something to report on.
func (h *Host) assembleAndReport(source, sourceName string) {
	opts := h.options()
	opts.SourceName = sourceName

	image, err := asm.Assemble(source, opts)
	if err != nil {
		h.printf("Assembly failed: %v\n", err)
		return
	}

	h.lastImage = image
	h.lastSource = sourceName
	h.printf("Assembled %q: %d text word(s), %d data byte(s), %d ktext word(s), %d kdata byte(s).\n",
		sourceName, len(image.Text), len(image.Data), len(image.KText), len(image.KData))
}

func (h *Host) assembleFile(filename string) error {
	b, err := os.ReadFile(filename)
	if err != nil {
		h.printf("Failed to open '%s': %v\n", filepath.Base(filename), err)
		return nil
	}

	h.assembleAndReport(string(b), filename)
	return nil
}

func (h *Host) displayCommands(commands *cmd.Tree) {
	h.printf("%s commands:\n", commands.Title)
	for _, c := range commands.Commands {
		if c.Brief != "" {
			h.printf("    %-20s  %s\n", c.Name, c.Brief)
		}
	}
	h.println()
}

func (h *Host) displayUsage(c *cmd.Command) {
	if c.Usage != "" {
		h.printf("Usage: %s\n", c.Usage)
	}
}

// Command handlers. Each is installed into the cmds tree in cmds.go as
// (*Host).cmdXxx, mirroring how go6502's host/cmds.go wires handlers
// defined in host/host.go.

func (h *Host) cmdAssembleFile(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayUsage(c.Command)
		return nil
	}
	return h.assembleFile(c.Args[0])
}

func (h *Host) cmdAssembleStdin(c cmd.Selection) error {
	h.state = stateCollectingSource
	h.collecting = nil
	h.lastCmd = nil
	h.println("Enter assembly source. Type END on its own line to assemble.")
	return nil
}

func (h *Host) cmdPseudoopsList(c cmd.Selection) error {
	entries := h.table.Listing()
	if len(entries) == 0 {
		h.println("No pseudo-instructions loaded.")
		return nil
	}
	h.printPseudoopListing(entries)
	return nil
}

func (h *Host) cmdPseudoopsReload(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayUsage(c.Command)
		return nil
	}

	filename := c.Args[0]
	b, err := os.ReadFile(filename)
	if err != nil {
		h.printf("Failed to open '%s': %v\n", filepath.Base(filename), err)
		return nil
	}

	var defs []*pseudoop.PseudoOpDefinition
	if strings.EqualFold(filepath.Ext(filename), ".json") {
		defs, err = pseudoop.LoadJSON(strings.NewReader(string(b)))
	} else {
		defs, err = pseudoop.LoadText(strings.NewReader(string(b)))
	}
	if err != nil {
		h.printf("Failed to parse '%s': %v\n", filepath.Base(filename), err)
		return nil
	}

	if err := h.table.Reload(defs); err != nil {
		h.printf("Failed to reload catalog: %v\n", err)
		return nil
	}

	h.printf("Reloaded pseudo-op catalog from '%s' (%d definitions).\n", filepath.Base(filename), len(defs))
	return nil
}

func (h *Host) cmdSymbols(c cmd.Selection) error {
	if h.lastImage == nil {
		h.println("No assembled image. Run 'assemble file' or 'assemble stdin' first.")
		return nil
	}
	h.printf("Symbols for %q:\n", h.lastSource)
	h.printSymbolTable(h.lastImage)
	return nil
}

func (h *Host) cmdRelocations(c cmd.Selection) error {
	if h.lastImage == nil {
		h.println("No assembled image. Run 'assemble file' or 'assemble stdin' first.")
		return nil
	}
	h.printf("Relocations for %q:\n", h.lastSource)
	h.printRelocations(h.lastImage)
	return nil
}

func (h *Host) cmdSourcemapWrite(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayUsage(c.Command)
		return nil
	}
	if h.lastImage == nil {
		h.println("No assembled image. Run 'assemble file' or 'assemble stdin' first.")
		return nil
	}

	filename := c.Args[0]
	file, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		h.printf("Failed to create '%s': %v\n", filepath.Base(filename), err)
		return nil
	}
	defer file.Close()

	files := sourceMapFiles(h.lastImage.SourceMap)
	if _, err := asm.EncodeSourceMap(file, files, h.lastImage.SourceMap); err != nil {
		h.printf("Failed to write '%s': %v\n", filepath.Base(filename), err)
		return nil
	}

	h.printf("Wrote source map '%s' (%d entries).\n", filepath.Base(filename), len(h.lastImage.SourceMap))
	return nil
}

func sourceMapFiles(entries []asm.SourceMapEntry) []string {
	var files []string
	seen := make(map[string]bool)
	for _, e := range entries {
		if !seen[e.File] {
			seen[e.File] = true
			files = append(files, e.File)
		}
	}
	return files
}

func (h *Host) cmdSet(c cmd.Selection) error {
	switch len(c.Args) {
	case 0:
		h.println("Settings:")
		h.settings.Display(h.output)
		h.output.Flush()

	case 1:
		h.displayUsage(c.Command)

	default:
		key, value := strings.ToLower(c.Args[0]), strings.Join(c.Args[1:], " ")

		var err error
		switch h.settings.Kind(key) {
		case reflect.Invalid:
			err = fmt.Errorf("setting '%s' not found", key)
		case reflect.String:
			err = h.settings.Set(key, value)
		case reflect.Bool:
			var v bool
			v, err = stringToBool(value)
			if err == nil {
				err = h.settings.Set(key, v)
			}
		default:
			err = fmt.Errorf("setting '%s' has an unsupported type", key)
		}

		if err == nil {
			h.println("Setting updated.")
		} else {
			h.printf("%v\n", err)
		}

		h.onSettingsUpdate()
	}

	return nil
}

func (h *Host) cmdHelp(c cmd.Selection) error {
	switch {
	case len(c.Args) == 0:
		h.displayCommands(cmds)
	default:
		s, err := cmds.Lookup(strings.Join(c.Args, " "))
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		switch {
		case s.Command.Subtree != nil:
			h.displayCommands(s.Command.Subtree)
		default:
			if s.Command.Usage != "" {
				h.printf("Usage: %s\n\n", s.Command.Usage)
			}
			if s.Command.Description != "" {
				h.printf("Description:\n   %s\n\n", s.Command.Description)
			} else if s.Command.Brief != "" {
				h.printf("Description:\n   %s.\n\n", s.Command.Brief)
			}
			if len(s.Command.Shortcuts) > 0 {
				h.printf("Shortcuts: %s\n\n", strings.Join(s.Command.Shortcuts, ", "))
			}
		}
	}
	return nil
}

func (h *Host) cmdQuit(c cmd.Selection) error {
	return errQuit
}

func stringToBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "0", "false":
		return false, nil
	case "1", "true":
		return true, nil
	default:
		return false, fmt.Errorf("invalid bool value '%s'", s)
	}
}
