package bucket

import "github.com/bashkirian/payment-health/pkg/models"

// Outcome of a single transaction.
type Outcome int

const (
	Approved Outcome = iota
	Declined
)

func (o Outcome) String() string {
	if o == Declined {
		return "declined"
	}
	return "approved"
}

// Source says which rule of the decision table produced an outcome.
type Source int

const (
	SourceFailedFlag Source = iota
	SourceApprovedFlag
	SourceStatus
	SourceDefault
)

func (s Source) String() string {
	switch s {
	case SourceFailedFlag:
		return "failed_flag"
	case SourceApprovedFlag:
		return "approved_flag"
	case SourceStatus:
		return "status_category"
	}
	return "default"
}

// StatusApproved is the only status_category value that counts as a success.
const StatusApproved = "approved"

type rule struct {
	source Source
	decide func(models.Event) (Outcome, bool)
}

// rules are evaluated in order; the first one that applies wins.
var rules = []rule{
	{SourceFailedFlag, func(e models.Event) (Outcome, bool) {
		if !e.Failed.Set {
			return Approved, false
		}
		if e.Failed.Value {
			return Declined, true
		}
		return Approved, true
	}},
	{SourceApprovedFlag, func(e models.Event) (Outcome, bool) {
		if !e.Approved.Set {
			return Approved, false
		}
		if e.Approved.Value {
			return Approved, true
		}
		return Declined, true
	}},
	{SourceStatus, func(e models.Event) (Outcome, bool) {
		if e.StatusCategory == "" {
			return Approved, false
		}
		if e.StatusCategory == StatusApproved {
			return Approved, true
		}
		return Declined, true
	}},
}

// ResolveOutcome applies the decision table: explicit failed flag, then explicit
// approved flag, then status_category == "approved", otherwise approved.
func ResolveOutcome(e models.Event) Outcome {
	o, _ := ResolveOutcomeSource(e)
	return o
}

// ResolveOutcomeSource is ResolveOutcome plus the rule that decided it.
func ResolveOutcomeSource(e models.Event) (Outcome, Source) {
	for _, r := range rules {
		if o, ok := r.decide(e); ok {
			return o, r.source
		}
	}
	return Approved, SourceDefault
}
