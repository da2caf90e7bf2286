package council

// Role is a council seat. The five known roles make up the default council;
// any other string is carried through and styled with the default arm.
type Role string

const (
	Finance    Role = "Finance"
	Risk       Role = "Risk"
	Strategy   Role = "Strategy"
	Ethics     Role = "Ethics"
	Operations Role = "Operations"
)

// Roles lists the council seats in presentation order.
var Roles = []Role{Finance, Risk, Strategy, Ethics, Operations}

// RoleStyle is the presentation descriptor for a role.
type RoleStyle struct {
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

// Style maps a role to its icon and accent colour.
func (r Role) Style() RoleStyle {
	switch r {
	case Finance:
		return RoleStyle{Icon: "trending-up", Color: "blue"}
	case Risk:
		return RoleStyle{Icon: "shield-alert", Color: "orange"}
	case Strategy:
		return RoleStyle{Icon: "compass", Color: "purple"}
	case Ethics:
		return RoleStyle{Icon: "scale", Color: "emerald"}
	case Operations:
		return RoleStyle{Icon: "settings", Color: "slate"}
	default:
		return RoleStyle{Icon: "settings", Color: "slate"}
	}
}

// Profile describes a council seat for the agents overview.
type Profile struct {
	Role        Role      `json:"id"`
	Title       string    `json:"role"`
	Description string    `json:"description"`
	Style       RoleStyle `json:"style"`
}

// Profile returns the overview card for r.
func (r Role) Profile() Profile {
	p := Profile{Role: r, Style: r.Style()}
	switch r {
	case Finance:
		p.Title = "Chief Financial Officer (CFO)"
		p.Description = "Analyzes fiscal impact, ROI, and long-term financial viability of strategic initiatives."
	case Risk:
		p.Title = "Chief Risk Officer (CRO)"
		p.Description = "Evaluates market, legal, and operational risks to ensure compliance and stability."
	case Strategy:
		p.Title = "Chief Strategy Officer (CSO)"
		p.Description = "Focuses on competitive advantage, market positioning, and growth scalability."
	case Ethics:
		p.Title = "Ethics & Governance Officer"
		p.Description = "Safeguards brand reputation through ESG, ethical trade-offs, and social impact analysis."
	case Operations:
		p.Title = "Chief Operating Officer (COO)"
		p.Description = "Optimizes execution, resource allocation, and supply chain efficiency."
	default:
		p.Title = string(r)
		p.Description = "Council advisor."
	}
	return p
}
