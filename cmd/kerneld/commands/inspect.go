package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lguibr/actorkernel/kernel/module"
)

// inspectCmd validates an image on disk and prints its header without
// booting a kernel or running any code in it — the static counterpart
// to load, for a CI pipeline or an operator checking an image before
// shipping it.
var inspectCmd = &cobra.Command{
	Use:   "inspect <image-path>",
	Short: "validate a module image and print its header",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		buf, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading image: %w", err)
		}
		parsed, err := module.ValidateImage(buf)
		if err != nil {
			return fmt.Errorf("invalid image: %w", err)
		}

		h := parsed.Header
		fmt.Fprintf(cmd.OutOrStdout(), "name:       %s\n", h.Name)
		fmt.Fprintf(cmd.OutOrStdout(), "version:    %d\n", h.ModuleVersion)
		fmt.Fprintf(cmd.OutOrStdout(), "author:     %s\n", h.Author)
		fmt.Fprintf(cmd.OutOrStdout(), "license:    %s\n", h.License)
		fmt.Fprintf(cmd.OutOrStdout(), "flags:      core=%v autostart=%v hotswap=%v aimonitor=%v privileged=%v persistent=%v\n",
			h.Flags.Has(module.FlagCore), h.Flags.Has(module.FlagAutoStart), h.Flags.Has(module.FlagHotSwap),
			h.Flags.Has(module.FlagAiMonitor), h.Flags.Has(module.FlagPrivileged), h.Flags.Has(module.FlagPersistent))
		fmt.Fprintf(cmd.OutOrStdout(), "sections:   code=%dB data=%dB bss=%dB\n", h.CodeSize, h.DataSize, h.BSSSize)
		fmt.Fprintf(cmd.OutOrStdout(), "symbols:    %d\n", len(parsed.Symbols))
		for _, s := range parsed.Symbols {
			fmt.Fprintf(cmd.OutOrStdout(), "  - %s (rel=0x%x size=%d)\n", s.Name, s.AddressRel, s.Size)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "dependencies: %d\n", len(parsed.Dependencies))
		for _, d := range parsed.Dependencies {
			fmt.Fprintf(cmd.OutOrStdout(), "  - %s (min=%d max=%d optional=%v)\n", d.Name, d.MinVersion, d.MaxVersion, d.Optional)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "checksum:   0x%08x (verified)\n", h.Checksum)
		return nil
	},
}
