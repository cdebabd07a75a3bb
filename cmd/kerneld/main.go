// Command kerneld boots the actor kernel. See cmd/kerneld/commands for
// the cobra command tree.
package main

import (
	"fmt"
	"os"

	"github.com/lguibr/actorkernel/cmd/kerneld/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
