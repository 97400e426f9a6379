package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/emrgen/linkfeed/internal/token"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(signupCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(whoamiCmd())
}

func signupCmd() *cobra.Command {
	var email string
	var password string
	var name string
	var required = []string{"email", "password", "name"}

	command := &cobra.Command{
		Use:     "signup",
		Short:   "create an account and log in",
		Example: "linkfeed signup -e <email> -p <password> -n <name>",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			ctx := context.Background()
			client, err := newClient(ctx)
			if err != nil {
				logrus.Error(err)
				return
			}
			defer client.Close()

			payload, err := client.Auth().Signup(ctx, email, password, name)
			if err != nil {
				logrus.Error(err)
				return
			}
			color.Green("signed up")
			if payload.User != nil {
				printField("User", payload.User.Name)
			}
		},
	}

	command.Flags().StringVarP(&email, "email", "e", "", "email (required)")
	command.Flags().StringVarP(&password, "password", "p", "", "password (required)")
	command.Flags().StringVarP(&name, "name", "n", "", "display name (required)")
	command.Flags().SortFlags = false

	return command
}

func loginCmd() *cobra.Command {
	var email string
	var password string
	var required = []string{"email", "password"}

	command := &cobra.Command{
		Use:     "login",
		Short:   "log in",
		Example: "linkfeed login -e <email> -p <password>",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			ctx := context.Background()
			client, err := newClient(ctx)
			if err != nil {
				logrus.Error(err)
				return
			}
			defer client.Close()

			payload, err := client.Auth().Login(ctx, email, password)
			if err != nil {
				logrus.Error(err)
				return
			}
			color.Green("logged in")
			if payload.User != nil {
				printField("User", payload.User.Name)
			}
		},
	}

	command.Flags().StringVarP(&email, "email", "e", "", "email (required)")
	command.Flags().StringVarP(&password, "password", "p", "", "password (required)")
	command.Flags().SortFlags = false

	return command
}

func logoutCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "logout",
		Short: "forget the session token",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			client, err := newClient(ctx)
			if err != nil {
				logrus.Error(err)
				return
			}
			defer client.Close()

			if err := client.Auth().Logout(); err != nil {
				logrus.Error(err)
				return
			}
			color.Green("logged out")
		},
	}

	return command
}

func whoamiCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "whoami",
		Short: "show the logged in user",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			client, err := newClient(ctx)
			if err != nil {
				logrus.Error(err)
				return
			}
			defer client.Close()

			claims, err := client.Auth().Whoami()
			if errors.Is(err, token.ErrNoToken) {
				color.Red("not logged in")
				return
			}
			if err != nil {
				logrus.Error(err)
				return
			}

			printField("User", claims.UserID)
			if !claims.IssuedAt.IsZero() {
				printField("Issued", claims.IssuedAt.Format(time.RFC3339))
			}
			if !claims.ExpiresAt.IsZero() {
				printField("Expires", claims.ExpiresAt.Format(time.RFC3339))
			}
		},
	}

	return command
}
