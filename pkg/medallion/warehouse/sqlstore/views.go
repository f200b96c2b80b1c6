package sqlstore

import (
	"strings"

	"github.com/cognicore/medallion/pkg/medallion/catalog"
	"github.com/cognicore/medallion/pkg/medallion/warehouse"
)

type viewDef struct {
	name         string
	materialized bool
	query        string
}

// goldViews returns the report views over the fact table. Table
// placeholders of the form {dim_asset} are resolved through the dialect.
func goldViews(d Dialect) []viewDef {
	names := map[string]string{
		"{fact}":                      d.Table(warehouse.Gold, catalog.Metrics.Table),
		"{" + catalog.DateTable + "}": d.Table(warehouse.Silver, catalog.DateTable),
	}
	for _, dim := range catalog.Dimensions() {
		names["{"+dim.Table+"}"] = d.Table(warehouse.Silver, dim.Table)
	}
	pairs := make([]string, 0, 2*len(names))
	for k, v := range names {
		pairs = append(pairs, k, v)
	}
	r := strings.NewReplacer(pairs...)

	views := []viewDef{
		{name: "fact_asset_metrics", query: `
SELECT m.id AS metric_id, d.full_date, a.serial_number, a.resource_name,
	p.provider_name, r.region_code, tm.team_name, sv.service_name, e.env_name,
	st.status_name, cc.center_code, sec.tier_name AS security_tier, hp.profile_name,
	m.cpu_usage_avg, m.memory_usage_avg, m.hourly_cost, m.uptime_seconds
FROM {fact} m
LEFT JOIN {dim_asset} a ON a.id = m.asset_id
LEFT JOIN {dim_date} d ON d.id = m.date_id
LEFT JOIN {dim_provider} p ON p.id = m.provider_id
LEFT JOIN {dim_region} r ON r.id = m.region_id
LEFT JOIN {dim_team} tm ON tm.id = m.team_id
LEFT JOIN {dim_service_type} sv ON sv.id = m.service_type_id
LEFT JOIN {dim_environment} e ON e.id = m.environment_id
LEFT JOIN {dim_status} st ON st.id = m.status_id
LEFT JOIN {dim_cost_center} cc ON cc.id = m.cost_center_id
LEFT JOIN {dim_security_tier} sec ON sec.id = m.security_tier_id
LEFT JOIN {dim_hardware_profile} hp ON hp.id = m.hardware_profile_id`},
		{name: "fact_asset_utilization_daily", materialized: true, query: `
SELECT m.id AS metric_id, d.full_date, a.serial_number, a.resource_name,
	tm.team_name, cc.center_code, m.cpu_usage_avg, m.memory_usage_avg,
	m.hourly_cost * 24 AS daily_cost
FROM {fact} m
JOIN {dim_asset} a ON a.id = m.asset_id
JOIN {dim_date} d ON d.id = m.date_id
LEFT JOIN {dim_team} tm ON tm.id = m.team_id
LEFT JOIN {dim_cost_center} cc ON cc.id = m.cost_center_id`},
		{name: "agg_team_costs_monthly", materialized: true, query: `
SELECT d.year, d.month, d.month_name, tm.team_name, tm.department,
	SUM(m.hourly_cost * 24) AS total_cost, AVG(m.cpu_usage_avg) AS avg_cpu
FROM {fact} m
JOIN {dim_date} d ON d.id = m.date_id
JOIN {dim_team} tm ON tm.id = m.team_id
GROUP BY d.year, d.month, d.month_name, tm.team_name, tm.department`},
		{name: "view_security_compliance_posture", materialized: true, query: `
SELECT sec.tier_name, sec.compliance_standard, sec.encryption_required,
	COUNT(DISTINCT m.asset_id) AS asset_count, SUM(m.hourly_cost * 24) AS daily_cost
FROM {fact} m
JOIN {dim_security_tier} sec ON sec.id = m.security_tier_id
GROUP BY sec.tier_name, sec.compliance_standard, sec.encryption_required`},
		{name: "agg_resource_efficiency", materialized: true, query: `
SELECT a.serial_number, a.resource_name,
	AVG(m.cpu_usage_avg) AS avg_cpu, AVG(m.memory_usage_avg) AS avg_memory,
	SUM(m.hourly_cost * 24) AS total_cost,
	CASE WHEN AVG(m.cpu_usage_avg) < 10 THEN 'ZOMBIE'
		WHEN AVG(m.cpu_usage_avg) < 40 THEN 'UNDERUTILIZED'
		ELSE 'OPTIMAL' END AS efficiency_band
FROM {fact} m
JOIN {dim_asset} a ON a.id = m.asset_id
GROUP BY a.serial_number, a.resource_name`},
	}
	for i := range views {
		views[i].query = strings.TrimSpace(r.Replace(views[i].query))
	}
	return views
}
