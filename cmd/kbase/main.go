package main

import (
	"github.com/joho/godotenv"

	"kbase/internal/cli"
)

func main() {
	_ = godotenv.Load()
	cli.Execute()
}
