package host

import "github.com/beevik/cmd"

var cmds *cmd.Tree

func init() {
	root := cmd.NewTree("mipsasm")
	root.AddCommand(cmd.Command{
		Name:        "help",
		Brief:       "Display help for a command",
		Description: "Display help for a command.",
		Usage:       "help [<command>]",
		Data:        (*Host).cmdHelp,
	})

	// Assemble commands
	ass := cmd.NewTree("Assemble")
	root.AddCommand(cmd.Command{
		Name:    "assemble",
		Brief:   "Assemble commands",
		Subtree: ass,
	})
	ass.AddCommand(cmd.Command{
		Name:  "file",
		Brief: "Assemble a file from disk",
		Description: "Run the two-pass assembler on the specified source" +
			" file and report the resulting image's segment sizes. The" +
			" image is kept so that symbols, relocations, and sourcemap" +
			" write can report on it.",
		Usage: "assemble file <filename>",
		Data:  (*Host).cmdAssembleFile,
	})
	ass.AddCommand(cmd.Command{
		Name:  "stdin",
		Brief: "Assemble source typed at the prompt",
		Description: "Start interactive source entry. A new prompt will" +
			" appear for each line; type END on its own line to assemble" +
			" the accumulated source.",
		Usage: "assemble stdin",
		Data:  (*Host).cmdAssembleStdin,
	})

	// Pseudo-op catalog commands
	pops := cmd.NewTree("Pseudo-ops")
	root.AddCommand(cmd.Command{
		Name:    "pseudoops",
		Brief:   "Pseudo-op catalog commands",
		Subtree: pops,
	})
	pops.AddCommand(cmd.Command{
		Name:        "list",
		Brief:       "List the loaded pseudo-instruction catalog",
		Description: "List every pseudo-instruction definition currently loaded, by mnemonic.",
		Usage:       "pseudoops list",
		Data:        (*Host).cmdPseudoopsList,
	})
	pops.AddCommand(cmd.Command{
		Name:  "reload",
		Brief: "Reload the pseudo-instruction catalog",
		Description: "Replace the pseudo-instruction catalog with the" +
			" definitions in the given file (.tab text form, or .json)." +
			" The previous catalog is discarded atomically; an in-flight" +
			" assemble is unaffected.",
		Usage: "pseudoops reload <filename>",
		Data:  (*Host).cmdPseudoopsReload,
	})

	root.AddCommand(cmd.Command{
		Name:        "symbols",
		Brief:       "Display the last assembled image's symbol table",
		Description: "Display every symbol defined in the most recently assembled image, grouped by segment.",
		Usage:       "symbols",
		Data:        (*Host).cmdSymbols,
	})
	root.AddCommand(cmd.Command{
		Name:        "relocations",
		Brief:       "Display the last assembled image's relocation records",
		Description: "Display every relocation record produced by the most recently assembled image.",
		Usage:       "relocations",
		Data:        (*Host).cmdRelocations,
	})

	// Source map commands
	smap := cmd.NewTree("Source map")
	root.AddCommand(cmd.Command{
		Name:    "sourcemap",
		Brief:   "Source map commands",
		Subtree: smap,
	})
	smap.AddCommand(cmd.Command{
		Name:  "write",
		Brief: "Write the last assembled image's source map to a file",
		Description: "Serialize the most recently assembled image's" +
			" source map to the given file using the delta-encoded" +
			" binary format.",
		Usage: "sourcemap write <filename>",
		Data:  (*Host).cmdSourcemapWrite,
	})

	root.AddCommand(cmd.Command{
		Name:  "set",
		Brief: "Set a configuration variable",
		Description: "Set the value of a configuration variable. To see" +
			" the current values of all configuration variables, type" +
			" set without any arguments.",
		Usage: "set [<var> <value>]",
		Data:  (*Host).cmdSet,
	})
	root.AddCommand(cmd.Command{
		Name:        "quit",
		Brief:       "Quit the program",
		Description: "Quit the program.",
		Usage:       "quit",
		Data:        (*Host).cmdQuit,
	})

	// Shortcuts
	root.AddShortcut("a", "assemble file")
	root.AddShortcut("ai", "assemble stdin")
	root.AddShortcut("p", "pseudoops list")
	root.AddShortcut("sym", "symbols")
	root.AddShortcut("reloc", "relocations")
	root.AddShortcut("?", "help")
	root.AddShortcut("q", "quit")

	cmds = root
}
