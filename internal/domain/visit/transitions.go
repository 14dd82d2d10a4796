package visit

var terminalStages = map[string]bool{
	StageCompleted:  true,
	StageDischarged: true,
	StageNoShow:     true,
}

// transitions lists the stages reachable through AdvanceStage. no-show is
// reached only through MarkNoShow.
var transitions = map[string][]string{
	StageWaiting:    {StageTriage, StageDoctor, StageInProgress},
	StageTriage:     {StageDoctor, StageInProgress},
	StageDoctor:     {StageLab, StagePharmacy, StageBilling, StageCompleted, StageDischarged},
	StageLab:        {StageDoctor, StagePharmacy, StageBilling},
	StagePharmacy:   {StageBilling, StageDoctor},
	StageBilling:    {StageCompleted, StageDischarged},
	StageInProgress: {StageCompleted},
}

// startStages mark the patient as seen; the first one entered stamps the
// actual start time.
var startStages = map[string]bool{
	StageTriage:     true,
	StageDoctor:     true,
	StageInProgress: true,
}

func IsTerminal(stage string) bool {
	return terminalStages[stage]
}

func ValidStage(stage string) bool {
	if terminalStages[stage] {
		return true
	}
	_, ok := transitions[stage]
	return ok
}

// CanTransition reports whether AdvanceStage may move an entry from one
// stage to the other.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStages returns the legal AdvanceStage targets from stage.
func NextStages(stage string) []string {
	out := make([]string, len(transitions[stage]))
	copy(out, transitions[stage])
	return out
}
