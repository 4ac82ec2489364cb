// Package authz decides, per actor and transition, whether an inspection
// action is permitted. Decisions are pure functions of the actor, the
// record, and the embedded permission table.
package authz

import (
	_ "embed"
	"fmt"

	"rental_inspections_backend/internal/inspections/domain"
	"rental_inspections_backend/platform/apperr"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Roles carried by authenticated actors.
const (
	RoleAdmin     = "admin"
	RoleInspector = "inspector"
	RoleUser      = "user"
)

// Capability is a reason an actor may act on a record.
type Capability string

const (
	CapOwner             Capability = "owner"
	CapRenter            Capability = "renter"
	CapAssignedInspector Capability = "assigned_inspector"
	CapInspector         Capability = "inspector"
	CapAdmin             Capability = "admin"
	CapAssignee          Capability = "assignee"
)

// Transition names a guarded action.
type Transition string

const (
	View                   Transition = "view"
	Create                 Transition = "create"
	SeedOwnerPreInspection Transition = "seed_owner_pre_inspection"
	Start                  Transition = "start"
	AddItem                Transition = "add_item"
	UpdateItem             Transition = "update_item"
	Complete               Transition = "complete"
	Cancel                 Transition = "cancel"
	AssignInspector        Transition = "assign_inspector"

	SubmitOwnerPreInspection    Transition = "submit_owner_pre_inspection"
	ConfirmOwnerPreInspection   Transition = "confirm_owner_pre_inspection"
	SubmitRenterPreReview       Transition = "submit_renter_pre_review"
	ReportRenterDiscrepancy     Transition = "report_renter_discrepancy"
	SettlePreDiscrepancy        Transition = "settle_pre_discrepancy"
	SubmitRenterPostInspection  Transition = "submit_renter_post_inspection"
	ConfirmRenterPostInspection Transition = "confirm_renter_post_inspection"
	SubmitOwnerPostReview       Transition = "submit_owner_post_review"

	ViewDisputes    Transition = "view_disputes"
	RaiseDispute    Transition = "raise_dispute"
	AssignDispute   Transition = "assign_dispute"
	ResolveDispute  Transition = "resolve_dispute"
	ListAllDisputes Transition = "list_all_disputes"
)

// Transitions lists every guarded action.
var Transitions = []Transition{
	View, Create, SeedOwnerPreInspection, Start, AddItem, UpdateItem, Complete, Cancel, AssignInspector,
	SubmitOwnerPreInspection, ConfirmOwnerPreInspection, SubmitRenterPreReview, ReportRenterDiscrepancy, SettlePreDiscrepancy,
	SubmitRenterPostInspection, ConfirmRenterPostInspection, SubmitOwnerPostReview,
	ViewDisputes, RaiseDispute, AssignDispute, ResolveDispute, ListAllDisputes,
}

//go:embed permissions.yaml
var permissionsYAML []byte

// Actor is the authenticated caller.
type Actor struct {
	ID   uuid.UUID
	Role string
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// IsInspector reports whether the actor holds the inspector role.
func (a Actor) IsInspector() bool { return a.Role == RoleInspector }

// Guard evaluates the permission table. It is immutable after construction.
type Guard struct {
	table map[Transition]map[Capability]bool
}

type permissionFile struct {
	Transitions map[string][]string `yaml:"transitions"`
}

// New parses the embedded permission table.
func New() (*Guard, error) {
	return Parse(permissionsYAML)
}

// MustNew is New for package initialisation; it panics on a malformed table.
func MustNew() *Guard {
	g, err := New()
	if err != nil {
		panic(err)
	}
	return g
}

// Parse builds a Guard from a YAML permission table. Unknown capabilities
// and transitions are rejected so a typo cannot silently deny or grant.
func Parse(raw []byte) (*Guard, error) {
	var file permissionFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse permission table: %w", err)
	}

	known := make(map[Transition]bool, len(Transitions))
	for _, t := range Transitions {
		known[t] = true
	}

	table := make(map[Transition]map[Capability]bool, len(file.Transitions))
	for name, caps := range file.Transitions {
		t := Transition(name)
		if !known[t] {
			return nil, fmt.Errorf("permission table: unknown transition %q", name)
		}
		set := make(map[Capability]bool, len(caps))
		for _, c := range caps {
			capability := Capability(c)
			if !validCapability(capability) {
				return nil, fmt.Errorf("permission table: transition %q has unknown capability %q", name, c)
			}
			set[capability] = true
		}
		table[t] = set
	}
	return &Guard{table: table}, nil
}

func validCapability(c Capability) bool {
	switch c {
	case CapOwner, CapRenter, CapAssignedInspector, CapInspector, CapAdmin, CapAssignee:
		return true
	}
	return false
}

// Capabilities derives what actor may claim against insp. Participant
// capabilities come from id equality, role capabilities from the role.
func Capabilities(actor Actor, insp *domain.Inspection) map[Capability]bool {
	caps := map[Capability]bool{}
	if actor.IsAdmin() {
		caps[CapAdmin] = true
	}
	if actor.IsInspector() {
		caps[CapInspector] = true
	}
	if insp == nil || actor.ID == uuid.Nil {
		return caps
	}
	if actor.ID == insp.OwnerID {
		caps[CapOwner] = true
	}
	if actor.ID == insp.RenterID {
		caps[CapRenter] = true
	}
	if insp.InspectorID != nil && actor.ID == *insp.InspectorID {
		caps[CapAssignedInspector] = true
	}
	return caps
}

// CanAct reports whether actor may perform t on insp.
func (g *Guard) CanAct(actor Actor, insp *domain.Inspection, t Transition) bool {
	return g.allowed(t, Capabilities(actor, insp))
}

// CanResolveDispute reports whether actor may resolve d.
func (g *Guard) CanResolveDispute(actor Actor, d *domain.Dispute) bool {
	caps := Capabilities(actor, nil)
	if d != nil && d.AssignedTo != nil && actor.ID != uuid.Nil && *d.AssignedTo == actor.ID {
		caps[CapAssignee] = true
	}
	return g.allowed(ResolveDispute, caps)
}

// CanActGlobally reports whether actor may perform t on no particular record.
func (g *Guard) CanActGlobally(actor Actor, t Transition) bool {
	return g.allowed(t, Capabilities(actor, nil))
}

// Require is CanAct returning a Forbidden error on denial.
func (g *Guard) Require(actor Actor, insp *domain.Inspection, t Transition) error {
	if g.CanAct(actor, insp, t) {
		return nil
	}
	return forbidden(t)
}

func (g *Guard) allowed(t Transition, caps map[Capability]bool) bool {
	required, ok := g.table[t]
	if !ok {
		return false
	}
	for c := range caps {
		if required[c] {
			return true
		}
	}
	return false
}

func forbidden(t Transition) error {
	return apperr.Forbidden(fmt.Sprintf("not permitted to %s", humanize(t)))
}

func humanize(t Transition) string {
	out := []byte(t)
	for i, b := range out {
		if b == '_' {
			out[i] = ' '
		}
	}
	return string(out)
}
