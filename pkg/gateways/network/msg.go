package network

import (
	"time"

	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/entities"
)

// RunSummaryMessage is the body published after every import run.
type RunSummaryMessage struct {
	FinishedAt time.Time           `json:"finishedAt"`
	Result     string              `json:"result"`
	Summary    entities.RunSummary `json:"summary"`
}

// FolderEvent is sent by the directory watcher when a device folder changed.
type FolderEvent struct {
	DeviceFolder string `json:"deviceFolder"`
}
