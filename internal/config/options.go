// Package config holds the flat Options struct populated from CLI flags,
// mirroring the field list the core consumes per the external interface
// contract: source, destination, and the archive/preserve/one-filesystem
// toggles.
package config

// Options is the complete set of toggles the CLI surface exposes to the
// core packages. There is no remote-style config file - arsync is a
// local-only copier, so every field here comes straight from flags.
type Options struct {
	Source      string
	Destination string

	Archive          bool
	PreserveXattrs   bool
	PreserveACL      bool
	PreserveHardlink bool
	CopyDevices      bool
	OneFilesystem    bool
	Durable          bool

	Verbosity int

	QueueDepth      uint32
	FallbackWorkers int
	MaxInFlightOps  int64
	MaxOpenFDs      int64
}

// Default returns an Options with the archive-mode defaults arsync uses
// when no flags override them.
func Default() Options {
	return Options{
		Archive:         true,
		QueueDepth:      256,
		FallbackWorkers: 8,
		MaxInFlightOps:  256,
		MaxOpenFDs:      128,
	}
}
