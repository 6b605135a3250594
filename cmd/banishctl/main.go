// banishctl is the control CLI for banishd.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"banishd/internal/config"
	"banishd/internal/ipc"
)

var (
	socketPath = flag.String("socket", "", "path to the banishd control socket")
	asJSON     = flag.Bool("json", false, "print status as JSON")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	cmd := flag.Arg(0)

	switch cmd {
	case "status":
		cmdStatus()
	case "pause":
		cmdSimple(func(c *ipc.Client) error { return c.Pause() }, "hiding paused")
	case "resume":
		cmdSimple(func(c *ipc.Client) error { return c.Resume() }, "hiding resumed")
	case "show":
		cmdSimple(func(c *ipc.Client) error { return c.Show() }, "pointer shown")
	case "ping":
		cmdSimple(func(c *ipc.Client) error { return c.Ping() }, "daemon is up")
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `banishctl - Control utility for banishd

Usage: banishctl [options] <command>

Commands:
  status   Show daemon state and event counters
  pause    Stop hiding the pointer until resume
  resume   Resume hiding after a pause
  show     Force the pointer visible right now
  ping     Check whether the daemon is running
  help     Show this help message

Options:
  -socket <path>  Control socket path (default: $XDG_RUNTIME_DIR/banishd.sock)
  -json           Print status as JSON`)
}

func connect() *ipc.Client {
	path := *socketPath
	if path == "" {
		path = config.DefaultSocketPath()
	}
	client, err := ipc.Dial(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return client
}

func cmdSimple(do func(*ipc.Client) error, done string) {
	client := connect()
	defer client.Close()

	if err := do(client); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(done)
}

func cmdStatus() {
	client := connect()
	defer client.Close()

	st, err := client.Status()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		printJSON(st)
		return
	}

	state := st.State
	if st.Paused {
		state += " (paused)"
	}
	fmt.Printf("Pointer:       %s\n", state)
	fmt.Printf("Uptime:        %s\n", st.Uptime.Round(time.Second))
	if st.IgnoreSet == "" {
		fmt.Printf("Ignored mods:  (none)\n")
	} else {
		fmt.Printf("Ignored mods:  %s\n", st.IgnoreSet)
	}
	fmt.Println()
	fmt.Println("Counters:")
	fmt.Printf("  Events seen:    %d\n", st.Counters.EventsSeen)
	fmt.Printf("  Typing:         %d\n", st.Counters.Typing)
	fmt.Printf("  Modifier-only:  %d\n", st.Counters.ModifierOnly)
	fmt.Printf("  Pointer:        %d\n", st.Counters.Pointer)
	fmt.Printf("  Hides / shows:  %d / %d\n", st.Counters.Hides, st.Counters.Shows)
	if st.Counters.SinkErrors > 0 {
		fmt.Printf("  Sink errors:    %d\n", st.Counters.SinkErrors)
	}
}

func printJSON(v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
