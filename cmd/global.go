package cmd

import "github.com/creativeprojects/mailarchive/cfg"

type GlobalFlags struct {
	configFile string
	quiet      bool
	verbose    bool
	debug      bool
	maildir    string
	archive    string
	fsLayout   bool
	store      string
}

var (
	global GlobalFlags
	config *cfg.Config
)
