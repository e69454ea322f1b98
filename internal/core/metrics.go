package core

import (
	"time"

	"audiolink/pkg/relay"
	"audiolink/pkg/streamlink"
)

// StatusOK labels successful resolutions.
const StatusOK = "ok"

// Metrics receives service observations.
type Metrics interface {
	relay.Recorder
	streamlink.DiscoveryRecorder
	RecordResolution(provider, status string, duration time.Duration)
	SetActiveProviders(count int)
}

type nopMetrics struct{}

func (nopMetrics) RecordFetch(string, int, time.Duration) {}
func (nopMetrics) RecordDiscovery(string) {}
func (nopMetrics) RecordResolution(string, string, time.Duration) {}
func (nopMetrics) SetActiveProviders(int) {}
