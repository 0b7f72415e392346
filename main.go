package main

import (
	"github.com/lockplane/schemasync/cmd"
)

func main() {
	cmd.Execute()
}
