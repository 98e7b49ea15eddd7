package model

// Path is the branch of the intake flow. It is chosen once, on the first
// action after the welcome prompt, and never changes afterwards.
type Path string

const (
	PathInitial    Path = "initial"
	PathHasProduct Path = "has-product"
	PathNeedsHelp  Path = "needs-help"
)

// Stage is a named position inside a path. Each path walks a fixed sequence
// of stages; the conversation step is the stage's ordinal in that sequence.
type Stage string

const (
	StageWelcome Stage = "welcome"

	StageProductName    Stage = "has_product.collecting_name"
	StageProductDetails Stage = "has_product.collecting_details"
	StageTargetStrategy Stage = "has_product.choosing_target"
	StageTargetValue    Stage = "has_product.collecting_target_value"
	StageTiming         Stage = "has_product.choosing_timing"
	StageContact        Stage = "has_product.collecting_phone"
	StageAwaitingCode   Stage = "has_product.awaiting_code"
	StageSubmitting     Stage = "has_product.submitting"
	StageWatchCreated   Stage = "has_product.completed"

	StageCategory     Stage = "needs_help.collecting_category"
	StageRequirements Stage = "needs_help.collecting_requirements"
	StageBudget       Stage = "needs_help.collecting_budget"
	StageHelpClosed   Stage = "needs_help.closed"
)

var pathStages = map[Path][]Stage{
	PathInitial: {StageWelcome},
	PathHasProduct: {
		StageProductName,
		StageProductDetails,
		StageTargetStrategy,
		StageTargetValue,
		StageTiming,
		StageContact,
		StageAwaitingCode,
		StageSubmitting,
		StageWatchCreated,
	},
	PathNeedsHelp: {
		StageCategory,
		StageRequirements,
		StageBudget,
		StageHelpClosed,
	},
}

// firstStep is the step number of the first stage of each path. Branch steps
// start at 1 because step 0 is always the welcome prompt.
var firstStep = map[Path]int{
	PathInitial:    0,
	PathHasProduct: 1,
	PathNeedsHelp:  1,
}

// FirstStage returns the entry stage of the path.
func (p Path) FirstStage() (Stage, bool) {
	stages := pathStages[p]
	if len(stages) == 0 {
		return "", false
	}
	return stages[0], true
}

// ConversationState is the whole state of one intake conversation.
type ConversationState struct {
	ID     string `json:"id"`
	Path   Path   `json:"path"`
	Stage  Stage  `json:"stage"`
	Fields Fields `json:"fields"`
}

// NewConversation returns the state of a conversation that has not received
// any action yet.
func NewConversation(id string) ConversationState {
	return ConversationState{ID: id, Path: PathInitial, Stage: StageWelcome}
}

// Step reports the branch-local step number. ok is false when the stage does
// not belong to the path, which only happens for corrupted state.
func (s ConversationState) Step() (step int, ok bool) {
	for i, st := range pathStages[s.Path] {
		if st == s.Stage {
			return firstStep[s.Path] + i, true
		}
	}
	return 0, false
}

// Terminal reports whether the flow has ended.
func (s ConversationState) Terminal() bool {
	return s.Stage == StageWatchCreated || s.Stage == StageHelpClosed
}

// NextStage returns the stage following the current one within its path.
func (s ConversationState) NextStage() (Stage, bool) {
	stages := pathStages[s.Path]
	for i, st := range stages {
		if st == s.Stage && i+1 < len(stages) {
			return stages[i+1], true
		}
	}
	return "", false
}
