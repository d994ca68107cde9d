package main

import "time"

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	// Remote daemon connection
	APIUrl     string
	APITimeout time.Duration
}

type ServeFlags struct {
	Listen        string
	BasePath      string
	MetricsListen string
	Daemonize     bool
	PidFile       string
	LogFile       string
}

// StartFlags selects a simple scan (Target and Flag) or a manual command line.
type StartFlags struct {
	Target  string
	Flag    string
	Command string
	Follow  bool
}
