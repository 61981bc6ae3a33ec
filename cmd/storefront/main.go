package main

import (
	"os"
)

func main() {
	if err := NewRootCmd(os.Getenv).Execute(); err != nil {
		os.Exit(1)
	}
}
