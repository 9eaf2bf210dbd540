package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mchmarny/devrank/pkg/config"
	"github.com/urfave/cli/v3"
)

var (
	yesFlag = &cli.BoolFlag{
		Name:  "yes",
		Usage: "Skip the confirmation prompt",
	}

	resetCmd = &cli.Command{
		Name:            "reset",
		Usage:           "Delete the local database (events and scores) and start fresh",
		HideHelpCommand: true,
		Action:          cmdReset,
		Flags: []cli.Flag{
			yesFlag,
		},
	}
)

var errResetUnsupported = errors.New("reset is only supported for the sqlite driver")

func cmdReset(ctx context.Context, cmd *cli.Command) error {
	st := getState(cmd)
	if st.cfg.Store.Driver != config.DriverSQLite {
		return errResetUnsupported
	}
	path := st.cfg.Store.DSN
	w := writer(cmd)

	if !cmd.Bool(yesFlag.Name) {
		fmt.Fprintf(w, "This will permanently delete all data in %s\n", path)
		fmt.Fprint(w, "Are you sure? [y/N]: ")

		var in io.Reader = os.Stdin
		if r := cmd.Root().Reader; r != nil {
			in = r
		}
		answer, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("reading input: %w", err)
		}
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Fprintln(w, "Aborted.")
			return nil
		}
	}

	// close the DB before deleting the file
	st.close()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting database: %w", err)
	}
	slog.Info("database deleted", "path", path)

	// opening recreates the schema
	if _, err := st.Store(ctx); err != nil {
		return fmt.Errorf("re-initializing database: %w", err)
	}

	fmt.Fprintln(w, "Reset complete.")
	return nil
}
