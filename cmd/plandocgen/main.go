// Command plandocgen prints the operation catalog as markdown, for
// embedding in agent prompts or docs.
package main

import (
	"fmt"
	"os"

	"github.com/planhub/planhub/internal/tools"
)

func main() {
	// Handlers are never invoked here, only the table is read.
	dispatcher := tools.New(tools.Config{})

	fmt.Fprintln(os.Stdout, "# PlanHub Operations (Generated)")
	fmt.Fprintln(os.Stdout)
	fmt.Fprintln(os.Stdout, "This file is generated from `internal/tools/operations.go`.")
	fmt.Fprintln(os.Stdout)

	for _, op := range dispatcher.Catalog() {
		fmt.Fprintf(os.Stdout, "- `%s`\n", op.Name)
		if op.Description != "" {
			fmt.Fprintf(os.Stdout, "  - Description: %s\n", op.Description)
		}
		if op.ReadOnly {
			fmt.Fprintln(os.Stdout, "  - Read-only")
		}
		if len(op.Args) > 0 {
			fmt.Fprintln(os.Stdout, "  - Input:")
			for _, arg := range op.Args {
				req := "optional"
				if arg.Required {
					req = "required"
				}
				fmt.Fprintf(os.Stdout, "    - `%s` (%s, %s): %s\n", arg.Name, arg.Type, req, arg.Description)
			}
		}
		fmt.Fprintln(os.Stdout)
	}
}
