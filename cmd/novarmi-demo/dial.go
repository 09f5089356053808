package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oriys/novarmi"
	"github.com/oriys/novarmi/internal/transport"
	"github.com/spf13/cobra"
)

func dialCmd() *cobra.Command {
	var (
		listenAddr    string
		peerAddr      string
		bootstrapFile string
		name          string
		timeout       time.Duration
		logFormat     string
		logLevel      string
	)

	cmd := &cobra.Command{
		Use:   "dial",
		Short: "Import the Greeter a serve peer exported and call it",
		Long:  "Read a bootstrap descriptor written by serve, import its Greeter, and drive the echo and remote-throw scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			objectID, info, err := readBootstrap(bootstrapFile)
			if err != nil {
				return err
			}

			session, err := rmi.NewSession(rmi.SessionConfig{
				Transport: transport.NewPeerTCP(listenAddr, peerAddr),
				LogFormat: logFormat,
				LogLevel:  logLevel,
			})
			if err != nil {
				return fmt.Errorf("new session: %w", err)
			}
			defer session.Close()
			if err := session.Serve(); err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			stub := session.ImportByID(objectID, info)

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			greeting, err := stub.Invoke(ctx, "Greet", name)
			if err != nil {
				return fmt.Errorf("Greet: %w", err)
			}
			fmt.Println(greeting)

			_, err = stub.Invoke(ctx, "Fail", "intentional demo failure")
			if err == nil {
				return fmt.Errorf("Fail unexpectedly succeeded")
			}
			var rf *rmi.RemoteFailure
			if !errors.As(err, &rf) {
				return fmt.Errorf("Fail returned an unexpected error type: %w", err)
			}
			fmt.Printf("Fail returned the expected remote failure: %s: %s\n", rf.ClassName, rf.Message)
			return nil
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:7762", "this side's own invocation listen address")
	cmd.Flags().StringVar(&peerAddr, "peer", "127.0.0.1:7761", "serve peer's invocation address")
	cmd.Flags().StringVar(&bootstrapFile, "bootstrap-file", "novarmi-demo-bootstrap.json", "path to the bootstrap descriptor written by serve")
	cmd.Flags().StringVar(&name, "name", "world", "name to greet")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "per-call timeout")
	cmd.Flags().StringVar(&logFormat, "log-format", "", "operational log format: text or json (default text)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "operational log level: debug, info, warn, or error (default info)")

	return cmd
}
