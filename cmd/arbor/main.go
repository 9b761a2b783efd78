package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/chatarbor/arbor/internal/profile"
	"github.com/chatarbor/arbor/internal/version"
	"github.com/chatarbor/arbor/store"
	"github.com/chatarbor/arbor/store/db"
)

var rootCmd = &cobra.Command{
	Use:   "arbor",
	Short: "A storage service for branching chat conversations: message trees with alternative continuations and file attachments.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		// Try to load .env file from current directory (ignore error if file doesn't exist)
		_ = godotenv.Load()
		return nil
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database schema if it does not exist yet",
	RunE: func(_ *cobra.Command, _ []string) error {
		storeInstance, err := openStore()
		if err != nil {
			return err
		}
		defer storeInstance.Close()

		ctx := context.Background()
		if err := storeInstance.Migrate(ctx); err != nil {
			slog.Error("failed to migrate", "error", err)
			return err
		}
		slog.Info("database ready", "driver", viper.GetString("driver"))
		return nil
	},
}

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "List recent conversations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		search, _ := cmd.Flags().GetString("search")

		storeInstance, err := openStore()
		if err != nil {
			return err
		}
		defer storeInstance.Close()

		ctx := context.Background()
		var conversations []*store.Conversation
		if search != "" {
			conversations, err = storeInstance.SearchConversationsByTitle(ctx, search)
		} else {
			conversations, err = storeInstance.ListRecentConversations(ctx, limit)
		}
		if err != nil {
			return err
		}

		for _, c := range conversations {
			updated := time.Unix(c.UpdatedTs, 0).Format(time.RFC3339)
			fmt.Printf("%6d  %-22s  %4d messages  %s  %s\n", c.ID, c.UID, c.MessageCount, updated, c.Title)
		}
		if len(conversations) == 0 {
			fmt.Println("no conversations")
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println(version.StringFull())
	},
}

func newProfile() (*profile.Profile, error) {
	instanceProfile := &profile.Profile{
		Mode:    viper.GetString("mode"),
		Data:    viper.GetString("data"),
		Driver:  viper.GetString("driver"),
		DSN:     viper.GetString("dsn"),
		Version: version.GetCurrentVersion(viper.GetString("mode")),
	}
	instanceProfile.FromEnv()
	if err := instanceProfile.Validate(); err != nil {
		return nil, err
	}
	return instanceProfile, nil
}

func openStore() (*store.Store, error) {
	instanceProfile, err := newProfile()
	if err != nil {
		return nil, err
	}

	dbDriver, err := db.NewDBDriver(instanceProfile)
	if err != nil {
		printDatabaseError(err, instanceProfile)
		return nil, err
	}
	return store.New(dbDriver, instanceProfile), nil
}

func printDatabaseError(err error, instanceProfile *profile.Profile) {
	fmt.Fprintf(os.Stderr, "failed to open %s database: %v\n", instanceProfile.Driver, err)
	if instanceProfile.Driver == "postgres" && strings.Contains(err.Error(), "connection refused") {
		fmt.Fprintln(os.Stderr, "hint: is PostgreSQL running and reachable at the configured DSN?")
	}
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")

	rootCmd.PersistentFlags().String("mode", "dev", `mode of service, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver (sqlite, postgres)")
	rootCmd.PersistentFlags().String("dsn", "", "database source name (aka. DSN)")

	for _, flag := range []string{"mode", "data", "driver", "dsn"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
	viper.SetEnvPrefix("arbor")
	viper.AutomaticEnv()

	conversationsCmd.Flags().Int("limit", 20, "maximum number of conversations to list")
	conversationsCmd.Flags().String("search", "", "filter by title substring")

	rootCmd.AddCommand(migrateCmd, conversationsCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
