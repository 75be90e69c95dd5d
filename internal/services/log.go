package services

import "log"

var verboseMode bool

// SetVerbose turns provider diagnostics on or off.
func SetVerbose(verbose bool) {
	verboseMode = verbose
}

func verboseLog(format string, v ...interface{}) {
	if verboseMode {
		log.Printf(format, v...)
	}
}
