package main

import (
	"log"
	"os"

	"github.com/dmitrijs2005/gatekeeper/internal/admin/command"
)

func main() {
	if err := command.App().Run(os.Args); err != nil {
		log.Fatalf("%v", err)
	}
}
