package main

import (
	"fmt"
	"os"
	"time"

	"github.com/marcus/todos/internal/api"
	"github.com/marcus/todos/internal/serverdb"
	"github.com/spf13/pflag"
)

func runAdmin(args []string) int {
	if len(args) == 0 {
		printAdminUsage()
		return 1
	}

	switch args[0] {
	case "stats":
		return runAdminStats(args[1:])
	case "prune":
		return runAdminPrune(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown admin command: %s\n", args[0])
		printAdminUsage()
		return 1
	}
}

func printAdminUsage() {
	fmt.Fprintln(os.Stderr, `Usage: todos-server admin <command> [flags]

Commands:
  stats   Show user count and schema version
  prune   Delete expired session keys and old auth events`)
}

func openDB(dbPath, driver string) (*serverdb.ServerDB, error) {
	if dbPath == "" || driver == "" {
		cfg, err := api.LoadConfig()
		if err != nil {
			return nil, err
		}
		if dbPath == "" {
			dbPath = cfg.DBPath
		}
		if driver == "" {
			driver = cfg.DBDriver
		}
	}
	return serverdb.OpenWithDriver(driver, dbPath)
}

func runAdminStats(args []string) int {
	fs := pflag.NewFlagSet("admin stats", pflag.ContinueOnError)
	dbPath := fs.String("db", "", "path to todos.db (default: TODOS_DB_PATH)")
	driver := fs.String("driver", "", "sqlite driver (default: TODOS_DB_DRIVER)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	store, err := openDB(*dbPath, *driver)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: open database: %v\n", err)
		return 1
	}
	defer store.Close()

	users, err := store.CountUsers()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: count users: %v\n", err)
		return 1
	}
	fmt.Printf("Driver:  %s\n", store.Driver())
	fmt.Printf("Schema:  %d\n", store.SchemaVersion())
	fmt.Printf("Users:   %d\n", users)
	return 0
}

func runAdminPrune(args []string) int {
	fs := pflag.NewFlagSet("admin prune", pflag.ContinueOnError)
	dbPath := fs.String("db", "", "path to todos.db (default: TODOS_DB_PATH)")
	driver := fs.String("driver", "", "sqlite driver (default: TODOS_DB_DRIVER)")
	retention := fs.Duration("events-older-than", 90*24*time.Hour, "auth event retention")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	store, err := openDB(*dbPath, *driver)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: open database: %v\n", err)
		return 1
	}
	defer store.Close()

	keys, err := store.CleanupExpiredSessionKeys()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: prune session keys: %v\n", err)
		return 1
	}
	events, err := store.CleanupAuthEvents(*retention)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: prune auth events: %v\n", err)
		return 1
	}
	fmt.Printf("Removed %d expired session keys and %d auth events.\n", keys, events)
	return 0
}
