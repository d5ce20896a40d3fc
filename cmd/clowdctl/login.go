package main

import (
	"errors"
	"strconv"

	"github.com/danmuck/clowdctl/internal/auth"
	"github.com/danmuck/clowdctl/internal/upload"
	"github.com/spf13/cobra"
)

func newLoginCmd(a *app) *cobra.Command {
	var user, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Check credentials and show the account profile",
		Long: `Authenticate against the server and print the account profile.

Without --user the [login] section of the config file is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			creds, err := loginCredentials(a, user, password)
			if err != nil {
				return err
			}
			client, err := a.client(upload.NopSink{})
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Login(commandContext(cmd), creds); err != nil {
				return err
			}
			p := client.Profile()
			printPairs(cmd.OutOrStdout(), [][2]string{
				{"Username", p.Username},
				{"Email", p.Email},
				{"Subscription", p.Subscription},
				{"Uploads", strconv.Itoa(p.Uploads)},
			})
			return nil
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password")
	return cmd
}

func loginCredentials(a *app, user, password string) (auth.Credentials, error) {
	if user != "" {
		return auth.NewCredentials(user, password)
	}
	creds, ok, err := a.cfg.Login.Credentials()
	if err != nil {
		return auth.Credentials{}, err
	}
	if !ok {
		return auth.Credentials{}, errors.New("no login: pass --user or set [login] in the config file")
	}
	return creds, nil
}
