package main

import "errors"

// errAlreadyRunning is returned when another process holds the data directory.
var errAlreadyRunning = errors.New("another instance is already running for this data directory")
