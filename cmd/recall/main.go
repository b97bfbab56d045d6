// Command recall is a local question-answering engine over your own notes.
package main

import "github.com/custodia-labs/recall/internal/adapters/driving/cli"

func main() {
	cli.Execute()
}
