package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lguibr/actorkernel/kernel/kctx"
	"github.com/lguibr/actorkernel/kernel/module"
	"github.com/lguibr/actorkernel/kernel/sandbox"
)

var loadLevel string

// loadCmd boots an ephemeral, unserved KernelContext and runs one image
// through the full load pipeline (validate, checksum, resolve
// dependencies, construct sandbox, publish exports), printing the
// resulting record. It cannot also call into the module: a module's
// real behavior is a native Go closure registered alongside its image
// at Load time (body.go's doc comment), which an image loaded from raw
// bytes on disk never carries — this command exercises the load
// pipeline itself, the way `inspect` exercises validation alone.
var loadCmd = &cobra.Command{
	Use:   "load <image-path>",
	Short: "run a module image through the load pipeline and print the resulting record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		buf, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading image: %w", err)
		}

		level, err := parseLevel(loadLevel)
		if err != nil {
			return err
		}

		kc := kctx.New(kctx.DefaultConfig())
		id, err := kc.Modules.Load(buf, module.Body{}, level)
		if err != nil {
			return fmt.Errorf("load failed: %w", err)
		}
		rec, _ := kc.Modules.Snapshot(id)
		fmt.Fprintf(cmd.OutOrStdout(), "loaded %q as module #%d, state=%s, level=%s\n",
			rec.Name, rec.ID, rec.State, rec.Sandbox.Level())
		for _, sym := range rec.Exports {
			fmt.Fprintf(cmd.OutOrStdout(), "  export: %s\n", sym.Name)
		}
		return nil
	},
}

func init() {
	loadCmd.Flags().StringVar(&loadLevel, "level", "user", "sandbox level: unrestricted, trusted, user, untrusted")
}

func parseLevel(s string) (sandbox.Level, error) {
	switch s {
	case "unrestricted":
		return sandbox.Unrestricted, nil
	case "trusted":
		return sandbox.Trusted, nil
	case "user", "":
		return sandbox.User, nil
	case "untrusted":
		return sandbox.Untrusted, nil
	default:
		return 0, fmt.Errorf("unknown sandbox level %q", s)
	}
}
