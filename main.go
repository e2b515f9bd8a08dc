package main

import (
	"os"

	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"

	"omop-lite/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
