package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/kristofer/smog/pkg/bytecode"
	"github.com/kristofer/smog/pkg/compiler"
	"github.com/kristofer/smog/pkg/object"
	"github.com/kristofer/smog/pkg/vm"
)

const version = "0.4.0"

const (
	exitOK           = 0
	exitUsageError   = 64
	exitCompileError = 65
	exitRuntimeError = 70
	exitIOError      = 74
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("smog", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	debugGC := fs.Bool("debug-gc", false, "stress and log the garbage collector")
	disasm := fs.Bool("disasm", false, "print a bytecode disassembly instead of running")
	showVersion := fs.Bool("version", false, "print the version and exit")

	if err := fs.Parse(args); err != nil {
		printUsage()
		return exitUsageError
	}

	if *showVersion {
		fmt.Printf("smog version %s\n", version)
		return exitOK
	}

	rest := fs.Args()
	switch len(rest) {
	case 0:
		runREPL(*debugGC)
		return exitOK
	case 1:
		if *disasm {
			return disassembleFile(rest[0])
		}
		return runFile(rest[0], *debugGC)
	default:
		printUsage()
		return exitUsageError
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: smog [-debug-gc] [-disasm] [script]")
}

// runFile reads, compiles, and executes a source file, returning the exit
// code spec.md §6 assigns to each outcome.
func runFile(path string, debugGC bool) int {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		return exitIOError
	}

	v := vm.New(os.Stdout, os.Stderr, debugGC, debugGC)
	ok, err := v.Interpret(string(data))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitRuntimeError
	}
	if !ok {
		return exitCompileError
	}
	return exitOK
}

// disassembleFile compiles a source file without running it and prints its
// bytecode, one instruction per line, the way a clox-family `debug.c` would.
func disassembleFile(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		return exitIOError
	}

	fn, ok := compiler.Compile(string(data), object.NewInterner(), os.Stderr)
	if !ok {
		return exitCompileError
	}
	bytecode.Disassemble(os.Stdout, fn.Chunk, fn.String())
	return exitOK
}

// runREPL implements spec.md §6's interactive loop: print a prompt, read a
// line, interpret it, repeat until EOF. Globals and the string-intern table
// are carried on one persistent VM across lines, same as the teacher's
// runREPL/evalREPL pair.
func runREPL(debugGC bool) {
	fmt.Printf("smog %s\n", version)

	v := vm.New(os.Stdout, os.Stderr, debugGC, debugGC)
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		line := scanner.Text()
		if _, err := v.Interpret(line); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}
