package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/raymyers/elfcc/pkg/ast"
	"github.com/raymyers/elfcc/pkg/buf"
	"github.com/raymyers/elfcc/pkg/compiler"
	"github.com/raymyers/elfcc/pkg/config"
	"github.com/raymyers/elfcc/pkg/diag"
)

var version = "0.1.0"

var (
	kindStyle  = pterm.NewStyle(pterm.FgRed, pterm.Bold)
	caretStyle = pterm.NewStyle(pterm.FgLightRed)

	diagStyle = diag.Styler{Kind: kindStyle.Sprint, Caret: caretStyle.Sprint}
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	rootCmd.SetArgs(normalizeFlags(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

// debugFlagNames lists the flags that also accept the single-dash style
var debugFlagNames = []string{"dparse", "dhex"}

// normalizeFlags converts single-dash debug flags like -dparse to --dparse
func normalizeFlags(args []string) []string {
	result := make([]string, len(args))
	for i, arg := range args {
		result[i] = arg
		for _, name := range debugFlagNames {
			if arg == "-"+name {
				result[i] = "--" + name
				break
			}
		}
	}
	return result
}

// options are the flags that do not feed the configuration
type options struct {
	configPath string
	verbose    bool
	dParse     bool
	dHex       bool
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	var opts options
	var overrides *config.Flags

	rootCmd := &cobra.Command{
		Use:   "elfcc [flags] file.c",
		Short: "elfcc compiles a subset of C straight to an x86-64 Linux executable",
		Long: `elfcc compiles a small subset of C directly into x86-64 machine code
and wraps it in a static ELF executable. There is no assembler, linker
or intermediate representation between the typed AST and the bytes.`,
		Version:       version,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			filename := args[0]
			info := pterm.Info.WithWriter(errOut)

			cfg, cfgPath, err := loadConfig(filename, opts.configPath)
			if err != nil {
				pterm.Error.WithWriter(errOut).Println(err)
				return err
			}
			overrides.Apply(&cfg)
			if opts.verbose && cfgPath != "" {
				info.Printfln("using configuration %s", cfgPath)
			}

			source, err := os.ReadFile(filename)
			if err != nil {
				pterm.Error.WithWriter(errOut).Printfln("reading %s: %v", filename, err)
				return err
			}

			if opts.dParse {
				prog, err := compiler.Parse(filename, string(source), cfg)
				if err != nil {
					report(errOut, err)
					return err
				}
				printUserProgram(out, prog, filename)
				return nil
			}

			if opts.verbose {
				info.Printfln("compiling %s (load base %#x, branch limit %d bytes)",
					filename, cfg.LoadBase, cfg.Limits.MaxBranchDisplacement)
			}
			res, err := compiler.Compile(filename, string(source), cfg)
			if err != nil {
				report(errOut, err)
				return err
			}

			if opts.dHex {
				dumpHex(out, res)
			}

			if err := writeExecutable(cfg.Output, res.Image); err != nil {
				pterm.Error.WithWriter(errOut).Printfln("writing %s: %v", cfg.Output, err)
				return err
			}
			if opts.verbose {
				pterm.Success.WithWriter(errOut).Printfln("wrote %s (%d bytes, %d bytes of code)",
					cfg.Output, res.Image.Len(), res.Code.CodeSize)
			}
			return nil
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	flags := rootCmd.Flags()
	overrides = config.BindFlags(flags)
	flags.StringVar(&opts.configPath, "config", "", "Read settings from `file` instead of "+config.FileName+" next to the source")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Report progress on stderr")
	flags.BoolVar(&opts.dParse, "dparse", false, "Dump the typed AST and stop")
	flags.BoolVar(&opts.dHex, "dhex", false, "Dump the generated code of each function in hex")

	return rootCmd
}

// loadConfig reads the explicit configuration file, or elfcc.toml next to
// the source file when there is one. It returns the path it read.
func loadConfig(filename, explicit string) (config.Config, string, error) {
	path := explicit
	if path == "" {
		path = config.Find(filepath.Dir(filename))
	}
	if path == "" {
		return config.Default(), "", nil
	}
	cfg, err := config.Load(path)
	return cfg, path, err
}

// writeExecutable streams image into path and marks it executable.
func writeExecutable(path string, image buf.Buf) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o755)
	if err != nil {
		return err
	}
	if _, err := image.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	// OpenFile keeps the mode of an existing file
	return os.Chmod(path, 0o755)
}

// report prints a compilation failure. Diagnostics get the offending line
// and a caret under the position.
func report(w io.Writer, err error) {
	d, ok := diag.As(err)
	if !ok {
		pterm.Error.WithWriter(w).Println(err)
		return
	}
	if d.Pos < 0 {
		fmt.Fprint(w, "elfcc: ")
	}
	diag.Render(w, d, diagStyle)
}

// printUserProgram dumps the program without the functions of the prelude.
func printUserProgram(w io.Writer, prog *ast.Program, filename string) {
	user := *prog
	user.Functions = nil
	for _, f := range prog.Functions {
		if f.File == filename {
			user.Functions = append(user.Functions, f)
		}
	}
	ast.NewPrinter(w).PrintProgram(&user)
}

// dumpHex prints the code of every routine and function in emission order.
func dumpHex(w io.Writer, res *compiler.Result) {
	text := res.Code.Text.Bytes()
	order := res.Code.Order
	for i, name := range order {
		start := res.Code.Offsets[name]
		end := res.Code.CodeSize
		if i+1 < len(order) {
			end = res.Code.Offsets[order[i+1]]
		}
		fmt.Fprintf(w, "%08x <%s>:\n", res.Code.Symbols.Functions[name], name)
		for off := start; off < end; off += 16 {
			fmt.Fprintf(w, "  %s\n", buf.New(text[off:min(off+16, end)]...))
		}
	}
}
