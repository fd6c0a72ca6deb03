package main

import "github.com/creativeprojects/mailarchive/cmd"

// set by the release build
var (
	version = "0.1.0-dev"
	commit  = ""
	date    = ""
	builtBy = ""
)

func main() {
	cmd.SetVersion(version, commit, date, builtBy)
	cmd.Execute()
}
