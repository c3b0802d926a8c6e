package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/guarzo/gymapi/common"
	"github.com/guarzo/gymapi/common/refresh"
	"github.com/guarzo/gymapi/modules/gym"
)

type app struct {
	log     *zap.Logger
	service gym.GymService
}

func newApp(cfg *Config) (*app, error) {
	log, err := common.NewLogger(cfg.Debug)
	if err != nil {
		return nil, err
	}

	store := common.NewFileStore(cfg.StateFile)
	cache := common.NewCacheStore()
	session := gym.NewSession(store.Credentials(), store.Users(), cache, log)

	refresher := common.NewOAuth2Refresher(cfg.TokenURL, cfg.ClientID, cfg.ClientSecret,
		&http.Client{Timeout: cfg.Timeout})
	coordinator := refresh.New(store.Credentials(), refresher, session,
		refresh.WithLogger(log),
		refresh.WithListener(func(token *oauth2.Token) {
			log.Debug("credential renewed", zap.Time("expiry", token.Expiry))
		}))

	httpClient := common.NewHttpClient(cfg.UserAgent, &http.Client{}, cfg.Timeout)
	client := gym.NewClient(cfg.BaseURL, httpClient, store.Credentials(), coordinator, gym.WithLogger(log))

	return &app{log: log, service: gym.NewGymService(client, session)}, nil
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var (
		cfgFile string
		a       *app
	)

	root := &cobra.Command{
		Use:           "gymctl",
		Short:         "Gym API command line client",
		Long:          "Sign in to the gym API and browse muscle groups and exercises",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v, cfgFile)
			if err != nil {
				return err
			}
			a, err = newApp(cfg)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a != nil {
				_ = a.log.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	flags.String("base-url", "", "Gym API base URL")
	flags.String("state-file", "", "File holding the signed-in session")
	flags.BoolP("debug", "v", false, "Enable debug logging")
	for key, flag := range map[string]string{
		"base_url":   "base-url",
		"state_file": "state-file",
		"debug":      "debug",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	root.AddCommand(
		signInCmd(&a),
		signOutCmd(&a),
		whoAmICmd(&a),
		groupsCmd(&a),
		exercisesCmd(&a),
	)
	return root
}

func signInCmd(a **app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in and store the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("GYMAPI_PASSWORD")
			}
			user, err := (*a).service.SignIn(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s <%s>\n", user.Name, user.Email)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "Account e-mail")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password (or GYMAPI_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func signOutCmd(a **app) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Remove the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := (*a).service.SignOut(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func whoAmICmd(a **app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, found, err := (*a).service.CurrentUser(cmd.Context())
			if err != nil {
				return err
			}
			if !found {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
				return nil
			}
			return printJSON(cmd.OutOrStdout(), user)
		},
	}
}

func groupsCmd(a **app) *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List muscle groups",
		RunE: func(cmd *cobra.Command, args []string) error {
			groups, err := (*a).service.GetGroups(cmd.Context())
			if err != nil {
				return err
			}
			for _, g := range groups {
				fmt.Fprintln(cmd.OutOrStdout(), g)
			}
			return nil
		},
	}
}

func exercisesCmd(a **app) *cobra.Command {
	return &cobra.Command{
		Use:   "exercises [group]",
		Short: "List the exercises of a muscle group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exercises, err := (*a).service.GetExercisesByGroup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), exercises)
		},
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describeError turns the error taxonomy into a message for the terminal.
func describeError(err error) string {
	var srvErr *common.ServerError
	switch {
	case gym.IsAuthenticationFailed(err):
		return "session expired, sign in again"
	case errors.As(err, &srvErr):
		return srvErr.Message
	default:
		return err.Error()
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "gymctl:", describeError(err))
		stop()
		os.Exit(1)
	}
}
