package proposal

import "time"

// Status is the lifecycle state of a proposal. It only moves forward:
// pending → opened → accepted.
type Status string

const (
	StatusPending  Status = "pending"
	StatusOpened   Status = "opened"
	StatusAccepted Status = "accepted"
)

// ParseStatus maps anything outside the three known statuses to pending.
func ParseStatus(v any) Status {
	s, _ := v.(string)
	switch Status(s) {
	case StatusOpened, StatusAccepted:
		return Status(s)
	default:
		return StatusPending
	}
}

// Rank orders statuses along the lifecycle.
func (s Status) Rank() int {
	switch s {
	case StatusOpened:
		return 1
	case StatusAccepted:
		return 2
	default:
		return 0
	}
}

// CanTransition reports whether to is the next step after s. Accepted is
// terminal and there is no declined state.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusOpened
	case StatusOpened:
		return to == StatusAccepted
	default:
		return false
	}
}

// Settable reports whether s may be written by UpdateStatus. Pending is
// only ever set at creation.
func (s Status) Settable() bool {
	return s == StatusOpened || s == StatusAccepted
}

type StageState string

const (
	StageCompleted StageState = "completed"
	StageActive    StageState = "active"
	StagePending   StageState = "pending"
)

// Stage is one row of the tracking timeline.
type Stage struct {
	Key   string     `json:"key"`
	State StageState `json:"state"`
	Label string     `json:"label"`
	At    *int64     `json:"at"`
}

// TimelineView is what the tracking page renders.
type TimelineView struct {
	Title     string   `json:"title"`
	Recipient string   `json:"recipient"`
	Status    Status   `json:"status"`
	Stages    []Stage  `json:"stages"`
	Waiting   string   `json:"waiting,omitempty"`
	Accepted  bool     `json:"accepted"`
	Proposal  Proposal `json:"proposal"`
}

// Timeline tracks the furthest state seen for one proposal. The remote
// status never moves backwards, so a lower-ranked value arriving after a
// higher one is a stale intermediate and is ignored.
type Timeline struct {
	current *Proposal
}

// Apply folds p into the timeline and reports whether the displayed state
// changed. Nil values are ignored.
func (t *Timeline) Apply(p *Proposal) bool {
	if p == nil {
		return false
	}
	if t.current != nil && p.Status.Rank() < t.current.Status.Rank() {
		return false
	}
	if t.current != nil && t.current.equal(p) {
		return false
	}
	copied := *p
	t.current = &copied
	return true
}

func (p *Proposal) equal(other *Proposal) bool {
	a, b := *p, *other
	a.OpenedAt, a.AcceptedAt, b.OpenedAt, b.AcceptedAt = nil, nil, nil, nil
	return a == b && sameTime(p.OpenedAt, other.OpenedAt) && sameTime(p.AcceptedAt, other.AcceptedAt)
}

func sameTime(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Current returns the latest applied proposal, or nil.
func (t *Timeline) Current() *Proposal {
	if t.current == nil {
		return nil
	}
	copied := *t.current
	return &copied
}

// View renders the three stages. It must not be called before Apply.
func (t *Timeline) View() TimelineView {
	p := t.current
	if p == nil {
		return TimelineView{}
	}
	pronoun := p.PartnerGender
	created := p.CreatedAt
	view := TimelineView{
		Title:     p.ProposerName + "'s Proposal",
		Recipient: "To: " + p.PartnerName,
		Status:    p.Status,
		Accepted:  p.Status == StatusAccepted,
		Proposal:  *p,
	}

	stages := []Stage{{Key: "created", State: StageCompleted, Label: "💌 Proposal created", At: &created}}

	opened := Stage{Key: "opened", Label: "👀 Opened"}
	switch p.Status {
	case StatusOpened, StatusAccepted:
		opened.State = StageCompleted
		opened.Label = "👀 " + pronoun.Subject() + " has seen it!"
		opened.At = p.OpenedAt
		view.Waiting = "Waiting for " + pronoun.Object() + " to respond"
	default:
		opened.State = StageActive
		view.Waiting = "Waiting for " + pronoun.Object() + " to open"
	}
	stages = append(stages, opened)

	accepted := Stage{Key: "accepted", Label: "💕 Accepted"}
	switch p.Status {
	case StatusAccepted:
		accepted.State = StageCompleted
		accepted.Label = "💕 " + pronoun.Subject() + " said YES!"
		accepted.At = p.AcceptedAt
		view.Waiting = ""
	case StatusOpened:
		accepted.State = StageActive
	default:
		accepted.State = StagePending
	}
	view.Stages = append(stages, accepted)
	return view
}

// FormatTime renders an epoch-millis timestamp the way the pages show it,
// or "-" when absent.
func FormatTime(at *int64, loc *time.Location) string {
	if at == nil || *at == 0 {
		return "-"
	}
	if loc == nil {
		loc = time.UTC
	}
	return time.UnixMilli(*at).In(loc).Format("Jan 2, 03:04 PM")
}
