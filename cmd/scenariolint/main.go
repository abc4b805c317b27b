// scenariolint validates scenario files and prints their event
// timeline, so a broken script fails fast instead of mid-run.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gridworks-sim/gridworks/scenario"
)

func main() {
	verbose := flag.Bool("v", false, "Print the full event timeline")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: scenariolint [-v] <scenario.yaml> ...")
		os.Exit(2)
	}

	failed := false
	for _, path := range flag.Args() {
		sc, err := scenario.Load(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed = true
			continue
		}

		fmt.Printf("%s: %d steps, last tick %d\n", path, len(sc.Steps), sc.LastTick())
		if *verbose {
			for _, st := range sc.Steps {
				fmt.Printf("  t=%-6d %s", st.AtTick, st.Op)
				switch st.Op {
				case "place":
					fmt.Printf(" id=%d kind=%s", st.ID, st.Kind)
				case "remove", "fuel":
					fmt.Printf(" id=%d", st.ID)
				case "link", "unlink":
					fmt.Printf(" a=%d b=%d", st.A, st.B)
				}
				fmt.Println()
			}
		}
	}
	if failed {
		os.Exit(1)
	}
}
