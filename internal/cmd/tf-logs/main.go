package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/charmbracelet/fang"
	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"
)

var (
	BuildVersion   = "master"
	BuildCommit    = "00000000"
	BuildDate      = time.Now().Format("2006-01-02T15:04:05Z")
	BuildGoVersion = runtime.Version()
	cfgFile        string
	resume         bool
	statusLimit    int
	rootCmd        = &cobra.Command{
		Use:   "tf-logs",
		Short: "logs.tf match puller",
		Long:  `tf-logs - Pulls TF2 match logs from logs.tf and flattens them into per player CSV rows`,
		RunE:  pull,
	}

	pullCmd = &cobra.Command{
		Use:               "pull",
		Short:             "Pull and flatten match logs",
		Long:              "Pull the logs of every configured map, writing a CSV checkpoint every checkpoint_interval matches",
		Args:              cobra.NoArgs,
		ValidArgsFunction: cobra.NoFileCompletions,
		RunE:              pull,
	}

	statusCmd = &cobra.Command{
		Use:               "status",
		Short:             "Show recorded pulls",
		Long:              "Show the progress of recent pulls as recorded at their last checkpoint",
		Args:              cobra.NoArgs,
		ValidArgsFunction: cobra.NoFileCompletions,
		RunE:              status,
	}

	versionCmd = &cobra.Command{
		Use:               "version",
		Short:             "Print version information",
		Long:              "Print detailed version information about tf-logs",
		Args:              cobra.NoArgs,
		ValidArgsFunction: cobra.NoFileCompletions,
		Run:               version,
	}
)

var errApp = errors.New("application error")

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file path")
	rootCmd.Flags().BoolVar(&resume, "resume", false, "Resume the most recent unfinished pull")
	pullCmd.Flags().BoolVar(&resume, "resume", false, "Resume the most recent unfinished pull")
	statusCmd.Flags().IntVar(&statusLimit, "limit", 10, "Number of pulls to show")
	rootCmd.AddCommand(pullCmd, statusCmd, versionCmd)

	if err := fang.Execute(context.Background(), rootCmd); err != nil {
		slog.Error("Exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func version(_ *cobra.Command, _ []string) {
	fmt.Printf("tf-logs - logs.tf match puller\n\n") //nolint:forbidigo
	fmt.Printf("  Version: %s\n", BuildVersion)      //nolint:forbidigo
	fmt.Printf("  Commit:  %s\n", BuildCommit)       //nolint:forbidigo
	fmt.Printf("  Built:   %s\n", BuildDate)         //nolint:forbidigo
	fmt.Printf("  Runtime: %s\n\n", BuildGoVersion)  //nolint:forbidigo
}
