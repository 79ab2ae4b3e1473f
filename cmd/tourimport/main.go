// Command tourimport imports tours from devices and tour files into a local
// tour database.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "tourimport: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out, logOutput io.Writer) error {
	s, rest, err := loadSettings(args)
	if err != nil {
		return err
	}
	if len(rest) == 0 {
		return errors.Errorf("missing command, one of: %s", commandNames())
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		return errors.Errorf("unknown command %q, one of: %s", rest[0], commandNames())
	}

	a, err := newApp(s, out, logOutput)
	if err != nil {
		return err
	}
	return cmd.run(ctx, a, rest[1:])
}
