package entities

const (
	StateIdle           string = "idle"
	StateDeviceSelected string = "deviceSelected"
	StateAcquiring      string = "acquiring"
	StateDecoding       string = "decoding"
	StateResolving      string = "resolving"
	StatePersisting     string = "persisting"
	StateClassifying    string = "classifying"
	StateDone           string = "done"
)

// FileOutcome is what happened to one file of a run.
type FileOutcome string

const (
	OutcomeImported           FileOutcome = "imported"
	OutcomeRejectedFormat     FileOutcome = "rejectedFormat"
	OutcomeCorruptData        FileOutcome = "corruptData"
	OutcomeUnsupportedVariant FileOutcome = "unsupportedVariant"
	OutcomeBackupUnavailable  FileOutcome = "backupUnavailable"
	OutcomeSkippedCollision   FileOutcome = "skippedCollision"
	OutcomeDuplicateName      FileOutcome = "duplicateName"
	OutcomeFailed             FileOutcome = "failed"
)

// CollisionPolicy tells the resolver what to do with a name clash.
type CollisionPolicy string

const (
	PolicyOverwrite         CollisionPolicy = "overwrite"
	PolicyRenameWithSuffix  CollisionPolicy = "renameWithSuffix"
	PolicySkip              CollisionPolicy = "skip"
	PolicyMoveToBackupFirst CollisionPolicy = "moveToBackupFirst"
)

// CollisionAction is the resolver's decision for one incoming file.
type CollisionAction string

const (
	ActionAccept         CollisionAction = "accept"
	ActionInPlace        CollisionAction = "inPlace"
	ActionOverwrite      CollisionAction = "overwrite"
	ActionRename         CollisionAction = "rename"
	ActionSkip           CollisionAction = "skip"
	ActionBackupAndStore CollisionAction = "backupAndStore"
)

// CollisionRecord describes a resolved name clash.
type CollisionRecord struct {
	File       string          `json:"file"`
	Action     CollisionAction `json:"action"`
	TargetName string          `json:"targetName,omitempty"`
	BackupPath string          `json:"backupPath,omitempty"`
}

// FileResult is the per-file entry of a run summary.
type FileResult struct {
	File     string      `json:"file"`
	Outcome  FileOutcome `json:"outcome"`
	Tours    int         `json:"tours"`
	ErrorMsg string      `json:"error,omitempty"`
}

// RunSummary is handed to the notifier after every pipeline run.
type RunSummary struct {
	DestinationFolder   string            `json:"destinationFolder"`
	DeviceID            string            `json:"deviceId,omitempty"`
	ImportedCount       int               `json:"importedCount"`
	SkippedFormatCount  int               `json:"skippedFormatCount"`
	SkippedCorruptCount int               `json:"skippedCorruptCount"`
	CollisionRenamed    int               `json:"collisionRenamedCount"`
	PersistedTours      int               `json:"persistedTours"`
	ClassifiedTours     int               `json:"classifiedTours"`
	Cancelled           bool              `json:"cancelled"`
	CollisionActions    []CollisionRecord `json:"collisionActions,omitempty"`
	Files               []FileResult      `json:"files,omitempty"`
}

// Record adds the outcome of one file to the counters.
func (s *RunSummary) Record(result FileResult) {
	switch result.Outcome {
	case OutcomeImported:
		s.ImportedCount++
	case OutcomeRejectedFormat:
		s.SkippedFormatCount++
	case OutcomeCorruptData, OutcomeUnsupportedVariant:
		s.SkippedCorruptCount++
	}
	s.Files = append(s.Files, result)
}

// RecordCollision adds a resolver decision that involved an existing file.
func (s *RunSummary) RecordCollision(record CollisionRecord) {
	if record.Action == ActionRename {
		s.CollisionRenamed++
	}
	s.CollisionActions = append(s.CollisionActions, record)
}
