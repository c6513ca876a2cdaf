package main

import "github.com/ecocycle/collection-service/cmd/collectionctl/cmd"

func main() {
	cmd.Execute()
}
