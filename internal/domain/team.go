package domain

import "fmt"

// Plan is a team or project subscription tier.
type Plan string

// Known plans.
const (
	PlanFree       Plan = "Free"
	PlanPro        Plan = "Pro"
	PlanEnterprise Plan = "Enterprise"
)

// Valid reports whether p is one of the known plans.
func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

// Role is the caller's role in a team, derived from the team plan.
type Role string

const (
	RoleOwner  Role = "Owner"
	RoleAdmin  Role = "Admin"
	RoleMember Role = "Member"
)

// RoleForPlan maps a plan onto the role shown for the team.
func RoleForPlan(p Plan) Role {
	switch p {
	case PlanFree:
		return RoleOwner
	case PlanPro:
		return RoleAdmin
	default:
		return RoleMember
	}
}

// Team represents a tenant grouping of projects.
type Team struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Plan     Plan      `json:"plan"`
	Projects []Project `json:"projects"`
}

// Description is the display summary of the team.
func (t Team) Description() string {
	return fmt.Sprintf("%s (%s plan)", t.Name, t.Plan)
}

// Role is derived from the plan on every read.
func (t Team) Role() Role {
	return RoleForPlan(t.Plan)
}

// Project returns the team's project with the given id.
func (t Team) Project(projectID string) (Project, bool) {
	for _, p := range t.Projects {
		if p.ID == projectID {
			return p, true
		}
	}
	return Project{}, false
}
