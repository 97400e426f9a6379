package cmd

import (
	"github.com/emrgen/linkfeed/internal/server"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var port string

	command := &cobra.Command{
		Use:     "serve",
		Short:   "run the development graphql server",
		Example: "linkfeed serve -p 4000",
		Run: func(cmd *cobra.Command, args []string) {
			if err := server.Start(port); err != nil {
				logrus.Errorf("error starting server: %v", err)
			}
		},
	}

	command.Flags().StringVarP(&port, "port", "p", "", "port, defaults to LINKFEED_SERVER_PORT")

	return command
}
