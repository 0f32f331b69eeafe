package feedsim

import "time"

// Config holds configuration for the feed simulator.
type Config struct {
	Addr           string        // Listen address for the websocket endpoint
	Runners        int           // Number of simulated runners
	Interval       time.Duration // Delay between broadcast frames
	Game           string        // Game title written into every frame
	MalformedEvery int           // Emit a truncated frame every N frames; 0 disables
	Seed           uint64        // Seed for the frame generator
	Verbose        bool          // Log every frame
}

// Stats holds simulator statistics.
type Stats struct {
	FramesGenerated int64
	FramesSent      int64
	FramesDropped   int64
	Subscribers     int
	StartTime       time.Time
	Duration        time.Duration
}
