package generator

// State is the orchestrator's position in the generation lifecycle.
type State int

const (
	StateNotStarted State = iota
	StateCopying
	StateReadingCopy
	StateReady
	StateConfiguring
	StateDeleting
	StateCopyingCompanion
	StateFinished
	StateFailed
)

var stateNames = map[State]string{
	StateNotStarted:       "NOT_STARTED",
	StateCopying:          "COPYING",
	StateReadingCopy:      "READING_COPY",
	StateReady:            "READY",
	StateConfiguring:      "CONFIGURING",
	StateDeleting:         "DELETING",
	StateCopyingCompanion: "COPYING_COMPANION",
	StateFinished:         "FINISHED",
	StateFailed:           "FAILED",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateFinished || s == StateFailed
}

// MarshalText lets states appear by name in JSON responses.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StatusTag is the externally observable progress signal.
type StatusTag string

const (
	StatusBackground        StatusTag = "BACKGROUND"
	StatusAccessingNewDeck  StatusTag = "ACCESSING_NEW_DECK"
	StatusWaiting           StatusTag = "WAITING"
	StatusConfiguringSlides StatusTag = "CONFIGURING_SLIDES"
	StatusDeckSelected      StatusTag = "DECK_SELECTED"
	StatusFinished          StatusTag = "FINISHED"
)

// Info carries the optional structured payload of a status.
type Info struct {
	FileID      string `json:"file_id,omitempty"`
	DeckURL     string `json:"deck_url,omitempty"`
	Section     string `json:"section,omitempty"`
	CompanionID string `json:"companion_id,omitempty"`
}

// StatusSink receives every status emitted by a Generator.
type StatusSink func(tag StatusTag, info Info)

// ErrorCallback receives the single terminal failure of a generation.
type ErrorCallback func(err error)
