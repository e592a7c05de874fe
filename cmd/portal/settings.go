package main

import (
	"errors"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/frontiertower/guest-portal/internal/auth"
	"github.com/frontiertower/guest-portal/internal/settings"
)

var flagShowSecrets bool

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect or change stored controller settings",
}

var settingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every known setting and where its value comes from",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSettings(cmd, func(store settings.Store, resolver *settings.Resolver) error {
			stored, err := store.All(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tVALUE\tSOURCE")
			for _, key := range settings.Known {
				value, source := stored[key], "store"
				if value == "" {
					value, source = resolver.Default(key), "environment"
				}
				if value == "" {
					source = "unset"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", key, display(key, value), source)
			}

			var unknown []string
			for key := range stored {
				if !settings.IsKnown(key) {
					unknown = append(unknown, key)
				}
			}
			sort.Strings(unknown)
			for _, key := range unknown {
				fmt.Fprintf(w, "%s\t%s\t%s\n", key, display(key, stored[key]), "store (unknown key)")
			}
			return w.Flush()
		})
	},
}

var settingsGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print the effective value of a setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		if !settings.IsKnown(key) {
			return fmt.Errorf("unknown setting %q", key)
		}
		return withSettings(cmd, func(_ settings.Store, resolver *settings.Resolver) error {
			value, err := resolver.Resolve(cmd.Context(), key)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), display(key, value))
			return nil
		})
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store a setting; an empty value removes it so the environment default applies",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if !settings.IsKnown(key) {
			return fmt.Errorf("unknown setting %q", key)
		}
		return withSettings(cmd, func(store settings.Store, _ *settings.Resolver) error {
			if value == "" {
				return store.Delete(cmd.Context(), key)
			}
			return store.Set(cmd.Context(), key, value)
		})
	},
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password <password>",
	Short: "Print a bcrypt hash for admin.password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := auth.HashPassword(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func display(key, value string) string {
	if settings.IsSecret(key) && !flagShowSecrets {
		return settings.Mask(value)
	}
	return value
}

func withSettings(cmd *cobra.Command, fn func(settings.Store, *settings.Resolver) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Settings.Backend == "memory" {
		return errors.New("the memory settings backend does not persist; nothing to inspect from the CLI")
	}

	st, err := openStores(cmd.Context(), cfg, zap.NewNop())
	if err != nil {
		return err
	}
	defer st.Close()

	return fn(st.settings, settings.NewResolver(st.settings, cfg.SettingDefaults()))
}

func init() {
	settingsCmd.PersistentFlags().BoolVar(&flagShowSecrets, "show-secrets", false, "Print secret values unmasked")

	settingsCmd.AddCommand(settingsListCmd)
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)
}
