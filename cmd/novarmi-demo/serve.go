package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/oriys/novarmi"
	"github.com/oriys/novarmi/internal/transport"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var (
		listenAddr    string
		peerAddr      string
		dgcListenAddr string
		dgcPeerAddr   string
		bootstrapFile string
		logFormat     string
		logLevel      string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Export a Greeter and accept invocations",
		Long:  "Export a Greeter object, write its bootstrap descriptor, and accept invocations until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rmi.SessionConfig{
				Transport: transport.NewPeerTCP(listenAddr, peerAddr),
				LogFormat: logFormat,
				LogLevel:  logLevel,
			}
			if dgcListenAddr != "" {
				cfg.DGCTransport = transport.NewPeerTCP(dgcListenAddr, dgcPeerAddr)
			}
			session, err := rmi.NewSession(cfg)
			if err != nil {
				return fmt.Errorf("new session: %w", err)
			}
			session.OnAsyncError(func(err error) {
				fmt.Fprintf(os.Stderr, "async invocation failed: %v\n", err)
			})

			info, err := describeGreeter()
			if err != nil {
				return fmt.Errorf("describe GreeterService: %w", err)
			}
			objectID, err := session.Export(greeterImpl{}, info)
			if err != nil {
				return fmt.Errorf("export greeter: %w", err)
			}
			if err := writeBootstrap(bootstrapFile, objectID, info); err != nil {
				return err
			}

			if err := session.Serve(); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			fmt.Printf("listening on %s, object %016x, bootstrap written to %s\n", listenAddr, uint64(objectID), bootstrapFile)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			sig := <-sigCh
			fmt.Printf("shutdown signal received: %s\n", sig)
			return session.Close()
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:7761", "invocation listen address")
	cmd.Flags().StringVar(&peerAddr, "peer", "127.0.0.1:7762", "peer's invocation address, for this side's own outbound calls")
	cmd.Flags().StringVar(&dgcListenAddr, "dgc-listen", "", "distributed-GC listen address (empty disables periodic DGC)")
	cmd.Flags().StringVar(&dgcPeerAddr, "dgc-peer", "", "peer's distributed-GC address")
	cmd.Flags().StringVar(&bootstrapFile, "bootstrap-file", "novarmi-demo-bootstrap.json", "path to write the exported object's bootstrap descriptor")
	cmd.Flags().StringVar(&logFormat, "log-format", "", "operational log format: text or json (default text)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "operational log level: debug, info, warn, or error (default info)")

	return cmd
}
