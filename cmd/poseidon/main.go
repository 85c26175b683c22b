// Command poseidon is the process entrypoint (spec §4.8/§6): it parses
// the -d/-h/-V/-v/[--] DIRECTORY command line, loads the configuration
// file, starts the resident components, and blocks until a shutdown
// signal arrives.
//
// The CLI surface mirrors original_source/poseidon/main.cpp's
// do_parse_command_line/do_print_help_and_exit, translated from
// getopt into the stdlib flag package the way the teacher's own
// examples/stest/server/main.go parses its flags.
package main

import (
	"flag"
	"fmt"
	"os"
	"syscall"

	"github.com/lhmouse/poseidon/runtime"
)

const (
	packageString = "poseidon 0.1.0"
	homepageURL   = "https://github.com/lhmouse/poseidon"
	bugReportURL  = "https://github.com/lhmouse/poseidon/issues"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("poseidon", flag.ContinueOnError)
	fs.Usage = func() { printUsage(fs) }

	daemonize := fs.Bool("d", false, "daemon mode; suppress startup banner and ignore SIGHUP (does not fork)")
	version := fs.Bool("V", false, "show version information then exit")
	verbose := fs.Bool("v", false, "enable verbose mode")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}

	if *version {
		fmt.Printf("%s\n\nVisit the homepage at <%s>.\nReport bugs to <%s>.\n",
			packageString, homepageURL, bugReportURL)
		return 0
	}

	rest := fs.Args()
	if len(rest) > 1 {
		fmt.Fprintf(os.Stderr, "poseidon: too many arguments -- %q\nTry `poseidon -h` for help.\n", rest[1])
		return 2
	}

	var workDir string
	if len(rest) == 1 {
		workDir = rest[0]
	}
	if workDir != "" {
		if err := os.Chdir(workDir); err != nil {
			fmt.Fprintf(os.Stderr, "poseidon: could not set working directory to %q: %v\n", workDir, err)
			return 1
		}
	}

	// Daemonization in the source forks twice and detaches from the
	// controlling terminal via setsid(); that double-fork dance has no
	// portable Go equivalent without re-exec'ing the binary, and the
	// init systems this module targets (systemd, supervisord) already
	// provide backgrounding, so -d here does not fork: it suppresses the
	// startup banner and makes SIGHUP ignored.
	_ = daemonize

	rt, err := runtime.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "poseidon: initialization failed: %v\n", err)
		return 1
	}

	if err := rt.LoadConfig("poseidon.conf"); err != nil {
		fmt.Fprintf(os.Stderr, "poseidon: %v\n", err)
		return 1
	}

	runtime.IgnoreSIGPIPE(*daemonize)

	if !*daemonize {
		rt.Logger.Info("starting up: %s", packageString)
	}
	if *verbose {
		rt.Logger.Info("verbose mode enabled")
	}

	rt.Start()
	rt.Logger.Info("startup complete: %s", packageString)

	sig := rt.WaitForSignal()
	rt.Shutdown()

	return signalExitCode(sig)
}

// signalExitCode maps the signal that triggered shutdown to the
// standard Unix 128+N convention (spec §6). Any signal not delivered
// through a syscall.Signal (impossible for the INT/TERM/ALRM set
// WaitForSignal listens for, but os.Signal is an interface) falls back
// to a plain success exit.
func signalExitCode(sig os.Signal) int {
	if n, ok := sig.(syscall.Signal); ok {
		return 128 + int(n)
	}
	return 0
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Usage: poseidon [OPTIONS] [[--] DIRECTORY]

  -d      daemon mode; suppress startup banner and ignore SIGHUP (does not fork)
  -h      show help message then exit
  -V      show version information then exit
  -v      enable verbose mode

If DIRECTORY is specified, the working directory is switched there before
doing everything else.

Visit the homepage at <%s>.
Report bugs to <%s>.
`, homepageURL, bugReportURL)
}
