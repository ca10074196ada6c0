// Command corpora indexes local document folders and searches them
// with combined semantic and metadata retrieval.
package main

import (
	"github.com/joho/godotenv"

	"github.com/custodia-labs/corpora-cli/internal/adapters/driving/cli"
)

func main() {
	// A .env in the working directory supplies API keys during
	// development; absence is not an error.
	_ = godotenv.Load()

	cli.Execute()
}
