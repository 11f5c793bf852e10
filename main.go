package main

import "github.com/ValentinKolb/dClient/cmd"

func main() {
	cmd.Execute()
}
