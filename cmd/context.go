package cmd

import (
	"fmt"
	"time"

	"github.com/emrgen/linkfeed/internal/config"
	"github.com/emrgen/linkfeed/internal/token"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var contextCommand = &cobra.Command{
	Use:   "context",
	Short: "context commands",
}

func init() {
	contextCommand.AddCommand(setContextCommand())
	contextCommand.AddCommand(currentContextCommand())
	contextCommand.AddCommand(resetContextCommand())
}

// saves the token to the context file in ~/.config/linkfeed
func setContextCommand() *cobra.Command {
	var tokenValue string
	var required = []string{"token"}

	command := &cobra.Command{
		Use:     "set",
		Short:   "set context",
		Example: "linkfeed context set -t <token>",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			if err := contextStore().SetToken(tokenValue); err != nil {
				fmt.Println("error writing config file: ", err)
				return
			}
			fmt.Println("context saved")
		},
	}

	command.Flags().StringVarP(&tokenValue, "token", "t", "", "token")

	return command
}

func currentContextCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "current",
		Short: "current context",
		Run: func(cmd *cobra.Command, args []string) {
			store := contextStore()
			value, err := store.Token()
			if err != nil {
				logrus.Error(err)
				return
			}

			printField("Path", store.Path())
			if value == "" {
				color.Red("not logged in")
				return
			}
			printField("Token", value)

			claims, err := token.ParseClaims(value)
			if err != nil {
				// opaque tokens carry no claims
				return
			}
			printField("User", claims.UserID)
			if !claims.ExpiresAt.IsZero() {
				printField("Expires", claims.ExpiresAt.Format(time.RFC3339))
			}
		},
	}

	return command
}

func resetContextCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "reset",
		Short: "reset context",
		Run: func(cmd *cobra.Command, args []string) {
			if err := contextStore().Clear(); err != nil {
				logrus.Error(err)
				return
			}
			fmt.Println("context reset")
		},
	}

	return command
}

// contextStore is the token file the other commands read.
func contextStore() *token.FileStore {
	dir := config.LoadConfig().TokenDir
	if dir == "" {
		dir = token.DefaultDir()
	}
	return token.NewFileStore(dir)
}
