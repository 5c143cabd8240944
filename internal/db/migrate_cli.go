package db

import (
	"fmt"
	"io"
	"strconv"
)

// RunMigrateCommand executes a migrate subcommand (up, down, status,
// force N) against the database at path and writes a summary to out.
func RunMigrateCommand(args []string, path string, out io.Writer) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: migrate up|down|status|force <version>")
	}
	database, err := OpenDB(path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	migrations := MigrationsFS()
	switch args[0] {
	case "up":
		if err := database.MigrateUp(migrations); err != nil {
			return err
		}
	case "down":
		if err := database.MigrateDown(migrations); err != nil {
			return err
		}
	case "status":
	case "force":
		if len(args) < 2 {
			return fmt.Errorf("usage: migrate force <version>")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[1], err)
		}
		if err := database.MigrateForce(migrations, v); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown migrate action %q", args[0])
	}

	version, dirty, err := database.MigrateVersion(migrations)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "schema version %d (dirty=%v)\n", version, dirty)
	return nil
}
