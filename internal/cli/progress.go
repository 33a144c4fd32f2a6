package cli

import (
	"github.com/corey-cole/riot/models"
	"github.com/go-logr/logr"
)

// progressListener reports job progress in the log
type progressListener struct {
	log logr.Logger
}

func newProgressListener(log logr.Logger) *progressListener {
	return &progressListener{log: log}
}

func (p *progressListener) OnEvent(event models.Event) {
	data := event.Data
	switch event.Type {
	case models.EventChunkWritten:
		p.log.V(1).Info("chunk written", "step", data["step"], "size", data["size"], "written", data["written"])
	case models.EventChunkRetried:
		p.log.Info("retrying chunk", "step", data["step"], "attempt", data["attempt"], "error", data["error"])
	case models.EventLiveState:
		p.log.Info("live state", "step", data["step"], "state", data["state"])
	case models.EventStepCompleted:
		p.log.Info("step completed", "step", data["step"],
			"read", data["read"], "written", data["written"], "skipped", data["skipped"],
			"filtered", data["filtered"], "stopped", data["stopped"], "duration", data["duration"])
	case models.EventStepFailed:
		p.log.Info("step failed", "step", data["step"],
			"read", data["read"], "written", data["written"], "skipped", data["skipped"], "error", data["error"])
	}
}
