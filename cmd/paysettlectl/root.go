package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/fatflowers/paysettle/internal/app"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "paysettlectl",
		Short:        "Operator tooling for payment settlement",
		SilenceUsage: true,
	}
	root.AddCommand(newReconcileCmd(), newLinkCmd(), newProrationCmd())
	return root
}

// withEngine starts the engine without the HTTP server, populates targets
// and runs fn. The app is stopped before returning.
func withEngine(ctx context.Context, fn func(ctx context.Context) error, targets ...any) error {
	a := fx.New(app.Core, fx.NopLogger, fx.Populate(targets...))
	if err := a.Err(); err != nil {
		return err
	}
	startCtx, cancel := context.WithTimeout(ctx, app.DefaultStartTimeout)
	defer cancel()
	if err := a.Start(startCtx); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}
	runErr := fn(ctx)

	stopCtx, cancel2 := context.WithTimeout(context.WithoutCancel(ctx), app.DefaultStopTimeout)
	defer cancel2()
	if err := a.Stop(stopCtx); err != nil && runErr == nil {
		return fmt.Errorf("failed to stop engine: %w", err)
	}
	return runErr
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
