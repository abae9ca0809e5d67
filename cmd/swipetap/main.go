// swipetap routes two-finger trackpad swipes to gesture recognizers.
//
//	swipetap run       Route indirect touches and log swipe progress
//	swipetap ctl       Control a running swipetap over its socket
//	swipetap env       Show event tap support on this host
//	swipetap config    Create, check or describe the configuration file
//	swipetap version   Print version information
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime"

	"swipetap/internal/config"
	"swipetap/internal/tap"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]

	switch cmd {
	case "run":
		os.Exit(cmdRun(os.Args[2:]))
	case "ctl":
		os.Exit(cmdCtl(os.Args[2:]))
	case "env":
		cmdEnv()
	case "config":
		os.Exit(cmdConfig(os.Args[2:]))
	case "version":
		fmt.Printf("swipetap %s (%s, %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`swipetap - Indirect trackpad swipe routing

USAGE:
    swipetap <command> [options]

COMMANDS:
    run                 Route two-finger swipes and log recognizer state
    ctl <action>        Control a running swipetap (status, enable, disable,
                        pause, resume, config, reload, watch, ping)
    env                 Show event tap support and permissions
    config <action>     Manage the configuration file (init, check, schema)
    version             Print version information
    help                Show this help message

RUN OPTIONS:
    -config <path>      Configuration file (default: platform config dir)
    -simulate           Use the simulated backend and play a scripted swipe
    -log-level <level>  Override the configured log level
    -audit              Write the audit trail (default true)

CTL OPTIONS:
    -config <path>      Configuration file naming the control socket
    -socket <path>      Control socket (overrides the configuration)

PERMISSIONS:
    macOS   Grant Accessibility / Input Monitoring to the terminal or binary.
    Linux   Add your user to the 'input' group to read /dev/input/event*.`)
}

func cmdEnv() {
	env := tap.DetectEnvironment()

	fmt.Println("=== swipetap Environment ===")
	fmt.Println()
	fmt.Printf("Provider:    %s\n", env.Provider)
	fmt.Printf("Available:   %v\n", env.Available)
	fmt.Printf("Permission:  %s\n", env.Permission)
	if env.Message != "" {
		fmt.Printf("Message:     %s\n", env.Message)
	}
	if env.Guidance != "" {
		fmt.Println()
		fmt.Println(env.Guidance)
	}
}

func cmdConfig(args []string) int {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	path := fs.String("config", "", "Configuration file")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: swipetap config [-config path] <init|check|schema>")
		return 1
	}

	switch fs.Arg(0) {
	case "init":
		target := *path
		if target == "" {
			target = config.ConfigPath()
		}
		_, created, err := config.LoadOrCreate(target)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		if created {
			fmt.Printf("Created %s\n", target)
		} else {
			fmt.Printf("%s already exists\n", target)
		}
		return 0

	case "check":
		target := resolveConfigPath(*path)
		cfg, err := config.Load(target)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			return 1
		}
		issues := config.Check(cfg)
		for _, w := range issues.Warnings() {
			fmt.Printf("warning: %s\n", w.Error())
		}
		if issues.HasErrors() {
			for _, e := range issues.Errors() {
				fmt.Printf("error: %s\n", e.Error())
			}
			return 1
		}
		fmt.Printf("%s: OK\n", displayPath(target))
		return 0

	case "schema":
		var doc any
		if err := json.Unmarshal(config.SchemaJSON(), &doc); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		out, _ := json.MarshalIndent(doc, "", "  ")
		fmt.Println(string(out))
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", fs.Arg(0))
		return 1
	}
}

// resolveConfigPath prefers an explicit path, then a config file found in
// the standard locations, then the default path.
func resolveConfigPath(path string) string {
	if path != "" {
		return path
	}
	if found := config.FindConfigFile(); found != "" {
		return found
	}
	return config.ConfigPath()
}

func displayPath(path string) string {
	if _, err := os.Stat(path); err != nil {
		return path + " (defaults)"
	}
	return path
}
