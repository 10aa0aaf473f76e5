package domain

// BuildResult is the state of one pipeline action.
type BuildResult string

const (
	ResultSuccess  BuildResult = "SUCCESS"
	ResultBuilding BuildResult = "BUILDING"
	ResultTesting  BuildResult = "TESTING"
	ResultPending  BuildResult = "PENDING"
	ResultFailed   BuildResult = "FAILED"
)

// Terminal reports whether the result will not change again for this action.
func (r BuildResult) Terminal() bool {
	return r == ResultSuccess || r == ResultFailed
}

// Commit identifies the commit an action is running for.
type Commit struct {
	Hash   string `json:"hash"`
	Name   string `json:"name"`
	Author string `json:"author"`
	RunID  string `json:"runId"`
}

// ShortHash returns the abbreviated commit hash.
func (c Commit) ShortHash() string {
	if len(c.Hash) > 7 {
		return c.Hash[:7]
	}
	return c.Hash
}

// ActionResult is the state of one build/test action for one commit.
type ActionResult struct {
	Result BuildResult `json:"result"`
	Commit Commit      `json:"commit"`
	// ActionStart is epoch seconds of when the action entered its current state.
	ActionStart int64 `json:"actionStart"`
}

// PiStatus is the per-node test state: locked (manual hold), idle (no image
// loaded) or active for a commit.
type PiStatus struct {
	IP     string        `json:"ip"`
	Locked bool          `json:"locked"`
	Active *ActionResult `json:"active,omitempty"`
}

// UpdateKind classifies an inbound status update.
type UpdateKind string

const (
	UpdateBuild UpdateKind = "BUILD"
	UpdateTest  UpdateKind = "TEST"
	UpdateQueue UpdateKind = "QUEUE"
)

// BuildStatusUpdate is the webhook payload driving the status tracker.
type BuildStatusUpdate struct {
	Build struct {
		Active *ActionResult  `json:"active"`
		Queue  []ActionResult `json:"queue"`
	} `json:"build"`
	Test struct {
		ActiveTests []PiStatus     `json:"activeTests"`
		Queue       []ActionResult `json:"queue"`
	} `json:"test"`
	Update struct {
		Kind  UpdateKind    `json:"type"`
		State *ActionResult `json:"state,omitempty"`
	} `json:"update"`
}
