package cmd

import (
	"database/sql"
	"fmt"
	"os"
	"runtime"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/sylph/internal/config"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("sylph doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Printf("  Prefix:   %q\n", cfg.Prefix)
	fmt.Printf("  Owners:   %d configured\n", len(cfg.Owners))
	fmt.Println()

	fmt.Println("  Bridges:")
	if len(cfg.Bridges) == 0 {
		fmt.Println("    (none configured)")
	}
	for _, b := range cfg.Bridges {
		fmt.Printf("    %-10s %s\n", b.Name+":", b.URL)
	}
	fmt.Println()

	fmt.Println("  Database:")
	fmt.Printf("    %-10s %s\n", "Backend:", cfg.Database.Backend)
	switch cfg.Database.Backend {
	case "postgres":
		db, err := sql.Open("pgx", cfg.Database.PostgresDSN)
		if err != nil {
			fmt.Printf("    %-10s CONNECT FAILED (%s)\n", "Status:", err)
			return
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			fmt.Printf("    %-10s CONNECT FAILED (%s)\n", "Status:", err)
			return
		}
		fmt.Printf("    %-10s OK\n", "Status:")
	default:
		path := config.ExpandHome(cfg.Database.Path)
		fmt.Printf("    %-10s %s\n", "Path:", path)
		if _, err := os.Stat(path); err != nil {
			fmt.Printf("    %-10s will be created on first flush\n", "Status:")
		} else {
			fmt.Printf("    %-10s OK\n", "Status:")
		}
	}
}
