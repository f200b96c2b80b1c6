package catalog

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/cognicore/medallion/pkg/medallion/table"
)

var (
	serialPattern     = regexp.MustCompile(`^RES-[A-Z0-9]{4}-[A-Z0-9]{4}$`)
	centerCodePattern = regexp.MustCompile(`^CC-\d{4}$`)
	regionPattern     = regexp.MustCompile(`^[a-z0-9\-]+$`)
)

// envName keeps UAT upper-case and capitalizes the rest.
var envName = stringRule(func(s string) (string, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "uat") {
		return "UAT", nil
	}
	return cases.Title(language.English).String(strings.ToLower(s)), nil
})

func key(name string, rules ...Rule) Field {
	return Field{Name: name, Type: table.String, Facet: true, Searchable: true, Required: true, Rules: rules}
}

func text(name string, searchable bool, rules ...Rule) Field {
	return Field{Name: name, Type: table.String, Searchable: searchable, Rules: rules}
}

func facet(name string, rules ...Rule) Field {
	return Field{Name: name, Type: table.String, Facet: true, Searchable: true, Rules: rules}
}

func flag(name string, def bool) Field {
	return Field{Name: name, Type: table.Bool, Facet: true, Default: def}
}

// Asset is the monitored cloud resource.
var Asset = DimensionSpec{
	Entity: "asset", Staging: "assets", Table: "dim_asset", BusinessKey: "serial_number",
	Fields: []Field{
		key("serial_number", Upper, Match(serialPattern)),
		{Name: "resource_name", Type: table.String, Searchable: true, Required: true, Rules: []Rule{Title, MinLen(3)}},
		text("description", true, Trim),
		{Name: "created_at", Type: table.Date, Facet: true},
	},
}

// CostCenter is a budget owner.
var CostCenter = DimensionSpec{
	Entity: "cost_center", Staging: "cost_centers", Table: "dim_cost_center", BusinessKey: "center_code",
	Fields: []Field{
		key("center_code", Upper, Match(centerCodePattern)),
		facet("department", Trim),
		{Name: "budget_limit", Type: table.Float, Rules: []Rule{Positive}},
	},
}

// Environment is a deployment stage.
var Environment = DimensionSpec{
	Entity: "environment", Staging: "environments", Table: "dim_environment", BusinessKey: "env_name",
	Fields: []Field{
		key("env_name", envName, OneOf("Production", "Staging", "Development", "UAT", "Sandbox")),
		{Name: "tier", Type: table.String, Facet: true, Searchable: true, Default: "Standard",
			Rules: []Rule{Title, OneOf("Mission Critical", "Standard", "Low Impact")}},
		flag("is_ephemeral", false),
	},
}

// HardwareProfile is a machine shape.
var HardwareProfile = DimensionSpec{
	Entity: "hardware_profile", Staging: "hardware_profiles", Table: "dim_hardware_profile", BusinessKey: "profile_name",
	Fields: []Field{
		key("profile_name", Lower, MinLen(1)),
		{Name: "cpu_count", Type: table.Int, Facet: true, Rules: []Rule{Positive}},
		{Name: "ram_gb", Type: table.Int, Facet: true, Rules: []Rule{Positive}},
	},
}

// Provider is a hosting vendor.
var Provider = DimensionSpec{
	Entity: "provider", Staging: "providers", Table: "dim_provider", BusinessKey: "provider_name",
	Fields: []Field{
		key("provider_name", Upper, MinLen(2)),
		{Name: "provider_type", Type: table.String, Facet: true, Searchable: true, Default: "Public Cloud",
			Rules: []Rule{Trim, OneOf("Public Cloud", "Private Cloud", "On-Premise")}},
		text("support_contact", true, Email),
	},
}

// Region is a geographic location.
var Region = DimensionSpec{
	Entity: "region", Staging: "regions", Table: "dim_region", BusinessKey: "region_code",
	Fields: []Field{
		key("region_code", Lower, Match(regionPattern)),
		text("display_name", true, Trim),
		facet("continent", Trim),
	},
}

// SecurityTier is a data classification level.
var SecurityTier = DimensionSpec{
	Entity: "security_tier", Staging: "security_tiers", Table: "dim_security_tier", BusinessKey: "tier_name",
	Fields: []Field{
		key("tier_name", Title, OneOf("Public", "Internal", "Confidential", "Restricted")),
		flag("encryption_required", true),
		facet("compliance_standard", Trim),
	},
}

// ServiceType is a category of managed service.
var ServiceType = DimensionSpec{
	Entity: "service_type", Staging: "service_types", Table: "dim_service_type", BusinessKey: "service_name",
	Fields: []Field{
		key("service_name", Upper, MinLen(2)),
		facet("category", Title, OneOf("Compute", "Storage", "Database", "Networking", "Security", "Other")),
		flag("is_managed", true),
	},
}

// Status is an operational state.
var Status = DimensionSpec{
	Entity: "status", Staging: "statuses", Table: "dim_status", BusinessKey: "status_name",
	Fields: []Field{
		key("status_name", Upper, MinLen(2)),
		flag("is_billable", true),
		text("description", true, Trim),
	},
}

// Team is an owning engineering team.
var Team = DimensionSpec{
	Entity: "team", Staging: "teams", Table: "dim_team", BusinessKey: "team_name",
	Fields: []Field{
		key("team_name", Title, MinLen(2)),
		facet("department", Title),
		text("lead_email", true, Email),
	},
}

// Dimensions returns the ten dimensions in declaration order. Fan-out search
// relies on this order staying stable.
func Dimensions() []DimensionSpec {
	return []DimensionSpec{
		Asset, CostCenter, Environment, HardwareProfile, Provider,
		Region, SecurityTier, ServiceType, Status, Team,
	}
}

// Lookup finds a dimension by entity name.
func Lookup(entity string) (DimensionSpec, bool) {
	for _, d := range Dimensions() {
		if d.Entity == entity {
			return d, true
		}
	}
	return DimensionSpec{}, false
}
