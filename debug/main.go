package main

import (
	"os"

	"github.com/emrgen/linkfeed/internal/server"
	"github.com/sirupsen/logrus"
)

func main() {
	port := os.Getenv("PORT")

	err := server.Start(port)
	if err != nil {
		logrus.Fatalf("error starting server: %v", err)
	}
}
