package session

// State is a step of the generation loop.
type State int

const (
	StateAnalyzeOriginal State = iota
	StateLoopStart
	StateBuildPrompt
	StateExtractMelody
	StateTransformMelody
	StateGenerate
	StateRepair
	StateAnalyzeGenerated
	StateScore
	StateContinue
	StateStop
	StateFinalize
)

var stateNames = [...]string{
	StateAnalyzeOriginal:  "ANALYZE_ORIGINAL",
	StateLoopStart:        "LOOP_START",
	StateBuildPrompt:      "BUILD_PROMPT",
	StateExtractMelody:    "EXTRACT_MELODY",
	StateTransformMelody:  "TRANSFORM_MELODY",
	StateGenerate:         "GENERATE",
	StateRepair:           "REPAIR",
	StateAnalyzeGenerated: "ANALYZE_GENERATED",
	StateScore:            "SCORE",
	StateContinue:         "CONTINUE",
	StateStop:             "STOP",
	StateFinalize:         "FINALIZE",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// Outcome tells a usable result apart from a session that produced none.
type Outcome string

const (
	OutcomeBest     Outcome = "best"
	OutcomeNoResult Outcome = "no_result"
)
