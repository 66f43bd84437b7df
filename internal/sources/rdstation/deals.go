// Package rdstation declares the CRM deal datasets. SDR and BDR deals share
// one row shape and differ only by funnel (pipeline id) and table.
package rdstation

import (
	"net/url"

	"go.uber.org/zap"

	"bietl/internal/fetch"
	"bietl/internal/normalize"
	"bietl/internal/pipeline"
	"bietl/internal/record"
	"bietl/internal/schema"
)

// Dataset names.
const (
	SDRDeals = "rd_sdr_deals"
	BDRDeals = "rd_bdr_deals"
)

// Credentials per dataset.
var (
	SDRRequires = []string{"RD_CRM_TOKEN", "RD_SDR_ID"}
	BDRRequires = []string{"RD_CRM_TOKEN", "RD_BDR_ID"}
)

// Source addresses the deals endpoint.
type Source struct {
	Client    fetch.JSONGetter
	BaseURL   string
	Token     string
	PageLimit int
	Logger    *zap.Logger
}

// Fetcher pages through the deals of one funnel.
func (s Source) Fetcher(pipelineID string) *fetch.PageFetcher {
	return &fetch.PageFetcher{
		Client: s.Client,
		URL:    s.BaseURL + "/deals",
		Params: url.Values{
			"token":            {s.Token},
			"deal_pipeline_id": {pipelineID},
		},
		ItemsKey:   "deals",
		HasMoreKey: "has_more",
		Limit:      s.PageLimit,
		Logger:     s.Logger,
	}
}

// DealsTable returns the deal table descriptor under name.
func DealsTable(name string) schema.Table {
	return schema.Table{
		Name: name,
		Columns: []schema.Column{
			{Name: "id", Type: schema.Text},
			{Name: "name", Type: schema.Text},
			{Name: "created_at", Type: schema.Date},
			{Name: "win", Type: schema.Bool},
			{Name: "closed_at", Type: schema.Date},
			{Name: "user_name", Type: schema.Text},
			{Name: "deal_stage_name", Type: schema.Text},
			{Name: "deal_lost_reason_name", Type: schema.Text},
			{Name: "deal_source_name", Type: schema.Text},
			{Name: "executivo_de_conta", Type: schema.Text},
			{Name: "foi_feito_handoff", Type: schema.Text},
			{Name: "data_handoff", Type: schema.Date},
			{Name: "numero_proposta", Type: schema.Text},
			{Name: "marca_do_carro", Type: schema.Text},
			{Name: "modelo_do_carro", Type: schema.Text},
			{Name: "por_onde_chegou", Type: schema.Text},
			{Name: "como_conheceu_carbon", Type: schema.Text},
			{Name: "momento_de_compra", Type: schema.Text},
		},
		PrimaryKey: []string{"id"},
		Mode:       schema.Upsert,
	}
}

// DealsMapping is the row shape shared by every deal table.
var DealsMapping = normalize.Mapping{
	CustomFields: &record.CustomFieldSpec{
		ListKey:   "deal_custom_fields",
		LabelPath: []string{"custom_field", "label"},
		ValueKey:  "value",
	},
	Rules: []normalize.Rule{
		{Column: "id", Extract: dealID},
		{Column: "name", Extract: normalize.NullableField("name")},
		{Column: "created_at", Extract: normalize.Date("created_at")},
		{Column: "win", Extract: normalize.Bool("win")},
		{Column: "closed_at", Extract: normalize.Date("closed_at")},
		{Column: "user_name", Extract: normalize.Field("user", "name")},
		{Column: "deal_stage_name", Extract: normalize.Field("deal_stage", "name")},
		{Column: "deal_lost_reason_name", Extract: normalize.Field("deal_lost_reason", "name")},
		{Column: "deal_source_name", Extract: normalize.Field("deal_source", "name")},
		{Column: "executivo_de_conta", Extract: normalize.Custom("Executivo de conta")},
		{Column: "foi_feito_handoff", Extract: normalize.Custom("Foi feito handoff?")},
		{Column: "data_handoff", Extract: normalize.CustomDate("Data Handoff")},
		{Column: "numero_proposta", Extract: normalize.Custom("Número Proposta")},
		{Column: "marca_do_carro", Extract: normalize.Custom("Marca do carro")},
		{Column: "modelo_do_carro", Extract: normalize.Custom("Modelo do carro")},
		{Column: "por_onde_chegou", Extract: normalize.Custom("Por onde chegou?")},
		{Column: "como_conheceu_carbon", Extract: normalize.Custom("Como conheceu a Carbon?")},
		{Column: "momento_de_compra", Extract: normalize.Custom("Momento de compra")},
	},
}

// dealID reads _id, falling back to id.
func dealID(in normalize.Input) (any, error) {
	if v := in.Record.Get("_id"); !v.IsAbsent() {
		return v.String(), nil
	}
	return in.Record.Get("id").String(), nil
}

// SDRDataset returns the SDR funnel deals dataset.
func SDRDataset(s Source, pipelineID string) pipeline.Dataset {
	return pipeline.Dataset{
		Name:    SDRDeals,
		Fetcher: s.Fetcher(pipelineID),
		Mapping: DealsMapping,
		Table:   DealsTable("rd_crm_sdr_deals"),
	}
}

// BDRDataset returns the BDR funnel deals dataset.
func BDRDataset(s Source, pipelineID string) pipeline.Dataset {
	return pipeline.Dataset{
		Name:    BDRDeals,
		Fetcher: s.Fetcher(pipelineID),
		Mapping: DealsMapping,
		Table:   DealsTable("rd_crm_bdr_deals"),
	}
}
