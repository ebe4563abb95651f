package main

import (
	"flag"
	"fmt"
	"os"

	"proxfw.dev/proxfw/cmd"
)

const defaultConfigFile = "/etc/proxfw/proxfw.hcl"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error

	switch os.Args[1] {
	case "compile":
		flags := flag.NewFlagSet("compile", flag.ExitOnError)
		configFile := flags.String("config", defaultConfigFile, "Daemon configuration file")
		pretty := flags.Bool("pretty", false, "Indent the JSON output")
		flags.Parse(os.Args[2:])

		err = cmd.RunCompile(*configFile, *pretty)

	case "apply":
		flags := flag.NewFlagSet("apply", flag.ExitOnError)
		configFile := flags.String("config", defaultConfigFile, "Daemon configuration file")
		flags.Parse(os.Args[2:])

		err = cmd.RunApply(*configFile)

	case "check":
		flags := flag.NewFlagSet("check", flag.ExitOnError)
		configFile := flags.String("config", defaultConfigFile, "Daemon configuration file")
		flags.Parse(os.Args[2:])

		err = cmd.RunCheck(*configFile)

	case "run":
		flags := flag.NewFlagSet("run", flag.ExitOnError)
		configFile := flags.String("config", defaultConfigFile, "Daemon configuration file")
		flags.Parse(os.Args[2:])

		err = cmd.RunDaemon(*configFile)

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`proxfw - nftables firewall compiler for virtualization hosts

Usage:
  proxfw compile [-config FILE] [-pretty]   Print the compiled ruleset as JSON
  proxfw apply   [-config FILE]             Compile and load into the kernel
  proxfw check   [-config FILE]             Validate the configuration tree
  proxfw run     [-config FILE]             Reconcile continuously
`)
}
