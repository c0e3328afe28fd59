package model

// Step is the issuance workflow state.
type Step int

const (
	// StepUnauthenticated: no secret confirmed; nothing but history actions.
	StepUnauthenticated Step = iota
	// StepAuthenticated: secret confirmed; catalog may be refreshed.
	StepAuthenticated
	// StepPackSelected: a pack from the cache is selected; lock is available.
	StepPackSelected
	// StepLocked: a pack is committed; selection and refresh are closed.
	StepLocked
	// StepIssued: a credential was obtained for the locked pack.
	StepIssued
)

var stepNames = [...]string{
	StepUnauthenticated: "unauthenticated",
	StepAuthenticated:   "authenticated",
	StepPackSelected:    "pack-selected",
	StepLocked:          "locked",
	StepIssued:          "issued",
}

func (s Step) String() string {
	if s < StepUnauthenticated || s > StepIssued {
		return "unknown"
	}
	return stepNames[s]
}
