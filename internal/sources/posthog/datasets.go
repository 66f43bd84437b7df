package posthog

import (
	_ "embed"

	"go.uber.org/zap"

	"bietl/internal/normalize"
	"bietl/internal/pipeline"
	"bietl/internal/schema"
)

// Dataset names.
const (
	Overview  = "ph_overview"
	PaidUsers = "ph_paid_users"
	RDEvents  = "ph_rd_events"
)

// Credentials every PostHog dataset needs.
var Requires = []string{"PH_TOKEN", "PH_PROJECT_ID"}

var (
	//go:embed queries/overview.sql
	overviewQuery string
	//go:embed queries/paid_users.sql
	paidUsersQuery string
	//go:embed queries/rd_events.sql
	rdEventsQuery string
)

// Source addresses one PostHog project.
type Source struct {
	Client    Poster
	BaseURL   string
	ProjectID string
	Token     string
	Logger    *zap.Logger
}

func (s Source) query(q string, zip bool) *QueryFetcher {
	return &QueryFetcher{
		Client:    s.Client,
		BaseURL:   s.BaseURL,
		ProjectID: s.ProjectID,
		Token:     s.Token,
		Query:     q,
		ZipArrays: zip,
		Logger:    s.Logger,
	}
}

// OverviewTable holds daily year-to-date traffic.
var OverviewTable = schema.Table{
	Name: "ph_overview",
	Columns: []schema.Column{
		{Name: "data", Type: schema.Date},
		{Name: "pageviews", Type: schema.Int},
		{Name: "sessions", Type: schema.Int},
		{Name: "users", Type: schema.Int},
		{Name: "avg_session_duration", Type: schema.Float},
	},
	Mode: schema.Snapshot,
}

var overviewMapping = normalize.Mapping{Rules: []normalize.Rule{
	{Column: "data", Extract: normalize.Date("data")},
	{Column: "pageviews", Extract: normalize.Int("pageviews")},
	{Column: "sessions", Extract: normalize.Int("sessions")},
	{Column: "users", Extract: normalize.Int("users")},
	{Column: "avg_session_duration", Extract: normalize.Float("avg_session_duration")},
}}

// PaidUsersTable holds monthly distinct visitors from paid campaigns.
var PaidUsersTable = schema.Table{
	Name: "ph_paid_users",
	Columns: []schema.Column{
		{Name: "date", Type: schema.Date},
		{Name: "total", Type: schema.Int},
	},
	Mode: schema.Snapshot,
}

var paidUsersMapping = normalize.Mapping{Rules: []normalize.Rule{
	{Column: "date", Extract: normalize.Date("date")},
	{Column: "total", Extract: normalize.Int("total")},
}}

// RDEventsTable holds daily CRM conversion events by origin.
var RDEventsTable = schema.Table{
	Name: "ph_rd_events",
	Columns: []schema.Column{
		{Name: "data", Type: schema.Date},
		{Name: "origem", Type: schema.Text},
		{Name: "total", Type: schema.Int},
	},
	Mode: schema.Snapshot,
}

var rdEventsMapping = normalize.Mapping{Rules: []normalize.Rule{
	{Column: "data", Extract: normalize.Date("data")},
	{Column: "origem", Extract: normalize.NullableField("origem")},
	{Column: "total", Extract: normalize.Int("total")},
}}

// OverviewDataset returns the ph_overview dataset.
func OverviewDataset(s Source) pipeline.Dataset {
	return pipeline.Dataset{Name: Overview, Fetcher: s.query(overviewQuery, false), Mapping: overviewMapping, Table: OverviewTable}
}

// PaidUsersDataset returns the ph_paid_users dataset.
func PaidUsersDataset(s Source) pipeline.Dataset {
	return pipeline.Dataset{Name: PaidUsers, Fetcher: s.query(paidUsersQuery, true), Mapping: paidUsersMapping, Table: PaidUsersTable}
}

// RDEventsDataset returns the ph_rd_events dataset.
func RDEventsDataset(s Source) pipeline.Dataset {
	return pipeline.Dataset{Name: RDEvents, Fetcher: s.query(rdEventsQuery, false), Mapping: rdEventsMapping, Table: RDEventsTable}
}
