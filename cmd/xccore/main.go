// Command xccore drives the back-end pipeline (internal/pipeline) from
// a shell: it reads a program in the textual IR notation described by
// internal/ir.ParseTextIR and either dumps the intermediate x86 IR, or
// assembles and runs a Linux/x86-64 executable.
package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
	"golang.org/x/arch/x86/x86asm"

	"github.com/tinylang/xcc/internal/ir"
	"github.com/tinylang/xcc/internal/pipeline"
	"github.com/tinylang/xcc/internal/x86ir"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "xccore",
		Short: "xcc back-end: atomize, select, allocate, encode, link",
	}

	var inputPath string
	var debug bool

	lowerCmd := &cobra.Command{
		Use:   "lower [file]",
		Short: "Run the pipeline and print the selected x86 IR for each function",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := readProgram(args, inputPath)
			if err != nil {
				return err
			}
			_, err = pipeline.Compile(prog, pipeline.Options{DebugDump: cmd.OutOrStdout()})
			return err
		},
	}
	lowerCmd.Flags().StringVarP(&inputPath, "input", "i", "", "input file (default: stdin)")

	var outputPath string
	var palette string

	asmCmd := &cobra.Command{
		Use:   "asm [file]",
		Short: "Compile a program to a Linux/x86-64 ELF executable",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := readProgram(args, inputPath)
			if err != nil {
				return err
			}
			opts, err := compileOptions(palette, debug, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			out, err := pipeline.Compile(prog, opts)
			if err != nil {
				return fmt.Errorf("compile: %w", err)
			}

			elf := buildELF64(out.Code, out.EntryOffset)
			if outputPath == "" {
				outputPath = "a.out"
			}
			if err := os.WriteFile(outputPath, elf, 0o755); err != nil {
				return fmt.Errorf("write %s: %w", outputPath, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes, entry +%#x)\n", outputPath, len(elf), out.EntryOffset)
			return nil
		},
	}
	asmCmd.Flags().StringVarP(&inputPath, "input", "i", "", "input file (default: stdin)")
	asmCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output executable path (default: a.out)")
	asmCmd.Flags().StringVar(&palette, "palette", "", "comma-separated register names overriding the allocator's palette")
	asmCmd.Flags().BoolVar(&debug, "debug", false, "print the selected x86 IR to stderr before encoding")

	runCmd := &cobra.Command{
		Use:   "run [file]",
		Short: "Compile a program and execute it, forwarding stdin/stdout",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := readProgram(args, inputPath)
			if err != nil {
				return err
			}
			opts, err := compileOptions(palette, debug, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			out, err := pipeline.Compile(prog, opts)
			if err != nil {
				return fmt.Errorf("compile: %w", err)
			}

			tmp, err := os.CreateTemp("", "xccore-*.bin")
			if err != nil {
				return err
			}
			defer os.Remove(tmp.Name())

			elf := buildELF64(out.Code, out.EntryOffset)
			if _, err := tmp.Write(elf); err != nil {
				tmp.Close()
				return err
			}
			if err := tmp.Chmod(0o755); err != nil {
				tmp.Close()
				return err
			}
			if err := tmp.Close(); err != nil {
				return err
			}

			child := exec.Command(tmp.Name())
			child.Stdin = cmd.InOrStdin()
			child.Stdout = cmd.OutOrStdout()
			child.Stderr = cmd.ErrOrStderr()
			if err := child.Run(); err != nil {
				if exitErr, ok := err.(*exec.ExitError); ok {
					os.Exit(exitErr.ExitCode())
				}
				return err
			}
			return nil
		},
	}
	runCmd.Flags().StringVarP(&inputPath, "input", "i", "", "input file (default: stdin)")
	runCmd.Flags().StringVar(&palette, "palette", "", "comma-separated register names overriding the allocator's palette")
	runCmd.Flags().BoolVar(&debug, "debug", false, "print the selected x86 IR to stderr before encoding")

	disasmCmd := &cobra.Command{
		Use:   "disasm <executable>",
		Short: "Disassemble the .text of a file written by 'asm', using a reference decoder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			text := extractText(data)
			for off := 0; off < len(text); {
				in, err := x86asm.Decode(text[off:], 64)
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%#06x: <decode error: %v>\n", off, err)
					off++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%#06x: %s\n", off, x86asm.GNUSyntax(in, uint64(off), nil))
				off += in.Len
			}
			return nil
		},
	}

	rootCmd.AddCommand(lowerCmd, asmCmd, runCmd, disasmCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func readProgram(args []string, inputPath string) (*ir.Program, error) {
	var r io.Reader = os.Stdin
	if len(args) > 0 {
		inputPath = args[0]
	}
	if inputPath != "" {
		f, err := os.Open(inputPath)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", inputPath, err)
		}
		defer f.Close()
		r = f
	}
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	prog, err := ir.ParseTextIR(string(src))
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return prog, nil
}

func compileOptions(palette string, debug bool, dump io.Writer) (pipeline.Options, error) {
	opts := pipeline.Options{}
	if debug {
		opts.DebugDump = dump
	}
	if palette == "" {
		return opts, nil
	}
	regs, err := parsePalette(palette)
	if err != nil {
		return opts, err
	}
	opts.Palette = regs
	return opts, nil
}

func parsePalette(s string) ([]x86ir.Reg, error) {
	names := splitComma(s)
	regs := make([]x86ir.Reg, 0, len(names))
	for _, name := range names {
		reg, ok := x86ir.RegByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown register %q", name)
		}
		regs = append(regs, reg)
	}
	return regs, nil
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
