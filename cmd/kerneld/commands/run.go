package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lguibr/actorkernel/debugsrv"
	"github.com/lguibr/actorkernel/kernel/kctx"
	"github.com/lguibr/actorkernel/klog"
)

// runCmd boots a KernelContext and blocks, mirroring main.go's
// "load config, construct engine, serve" sequence: construct the
// context, optionally start debugsrv, run the dispatch loop on its own
// goroutine, and wait for SIGINT/SIGTERM to drive a graceful Stop.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "boot the kernel and run until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := kctx.DefaultConfig()
		klog.Infof("kerneld: booting with MaxActors=%d MaxModules=%d", cfg.Engine.MaxActors, cfg.Module.MaxModules)

		kc := kctx.New(cfg)
		fmt.Fprintf(cmd.OutOrStdout(), "kernel booted, boot id %s\n", kc.BootID)

		runDone := make(chan struct{})
		go func() {
			defer close(runDone)
			kc.Run()
		}()

		var dsrv *debugsrv.Server
		if debugAddr != "" {
			dsrv = debugsrv.New(kc)
			go func() {
				if err := dsrv.ListenAndServe(debugAddr); err != nil {
					klog.Warnf("kerneld: debug server stopped: %v", err)
				}
			}()
			fmt.Fprintf(cmd.OutOrStdout(), "debug server listening on %s\n", debugAddr)
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		fmt.Fprintln(cmd.OutOrStdout(), "shutting down...")
		if dsrv != nil {
			dsrv.Shutdown()
		}
		kc.Stop()
		<-runDone
		return nil
	},
}
