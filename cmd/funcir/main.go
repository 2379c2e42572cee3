// Command funcir recovers the control-flow graph of one function in a flat
// binary image and prints it as a Graphviz DOT dump or as lifted LLVM IR.
//
// Usage:
//
//	funcir -bin prog.bin -base 0x400000 -entry 0x401000 [-dot] [-q]
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/mewkiz/pkg/term"
	"github.com/pkg/errors"

	"github.com/opcodeflow/recore/arch/x86"
	"github.com/opcodeflow/recore/bin"
	"github.com/opcodeflow/recore/corefunc"
	"github.com/opcodeflow/recore/lift"
)

var (
	// dbg is a logger which logs debug messages with "funcir:" prefix to
	// standard error.
	dbg = log.New(os.Stderr, term.MagentaBold("funcir:")+" ", 0)
)

func main() {
	var (
		binPath string
		base    bin.Addr
		entry   bin.Addr
		mode    int
		dot     bool
		quiet   bool
	)
	flag.StringVar(&binPath, "bin", "", "path to the flat binary image")
	flag.Var(&base, "base", "load address of the first byte of the image")
	flag.Var(&entry, "entry", "entry address of the function to recover")
	flag.IntVar(&mode, "mode", 32, "x86 processor mode (16, 32 or 64)")
	flag.BoolVar(&dot, "dot", false, "print a Graphviz DOT dump of the CFG instead of LLVM IR")
	flag.BoolVar(&quiet, "q", false, "suppress debug output")
	flag.Parse()

	if quiet {
		dbg.SetOutput(io.Discard)
	}
	if binPath == "" {
		log.Fatalf("%+v", errors.New("missing required flag -bin"))
	}

	if err := run(binPath, base, entry, mode, dot); err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(binPath string, base, entry bin.Addr, mode int, dot bool) error {
	data, err := os.ReadFile(binPath)
	if err != nil {
		return errors.WithStack(err)
	}
	region := bin.NewRegion(binPath, base, data)

	dbg.Printf("recovering function at %v in %q", entry, binPath)
	decoder := x86.NewDecoder(x86.Mode(mode))
	f, err := corefunc.New(decoder, region, entry)
	if err != nil {
		return errors.WithStack(err)
	}

	if dot {
		fmt.Print(f.DOT())
		return nil
	}

	m, err := lift.Module(f)
	if err != nil {
		return errors.WithStack(err)
	}
	fmt.Print(m.String())
	return nil
}
