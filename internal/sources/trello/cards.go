// Package trello declares the board-cards dataset: every card of every list
// on one board, tagged with its list name and members.
package trello

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"bietl/internal/datasource/httpds"
	"bietl/internal/fetch"
	"bietl/internal/normalize"
	"bietl/internal/pipeline"
	"bietl/internal/record"
	"bietl/internal/schema"
)

// Cards is the dataset name.
const Cards = "trello_cards"

// Requires lists the credentials the dataset needs.
var Requires = []string{"TRELLO_API_KEY", "TRELLO_TOKEN", "TRELLO_BOARD_ID"}

// listNameKey is injected into every card record.
const listNameKey = "list_name"

// DefaultListWorkers bounds how many lists are drained at once. A dataset
// pipeline runs synchronously, so lists are drained one after another.
const DefaultListWorkers = 1

// BoardFetcher lists the board's lists, then drains each list's cards with
// a before cursor. Cards are requested with their members embedded so no
// per-card member call is needed. Cards come back in board list order and
// the first failing list cancels the rest.
type BoardFetcher struct {
	Client    fetch.JSONGetter
	BaseURL   string
	APIKey    string
	Token     string
	BoardID   string
	PageLimit int
	Logger    *zap.Logger
}

func (f *BoardFetcher) auth() url.Values {
	return url.Values{"key": {f.APIKey}, "token": {f.Token}}
}

// FetchAll implements fetch.Fetcher.
func (f *BoardFetcher) FetchAll(ctx context.Context) ([]record.Record, error) {
	log := f.Logger
	if log == nil {
		log = zap.NewNop()
	}

	listsURL, err := httpds.WithQuery(
		fmt.Sprintf("%s/boards/%s/lists", f.BaseURL, url.PathEscape(f.BoardID)), f.auth())
	if err != nil {
		return nil, err
	}
	var lists []record.Record
	if err := f.Client.GetJSON(ctx, listsURL, nil, &lists); err != nil {
		return nil, fmt.Errorf("trello: board lists: %w", err)
	}

	// One slot per list keeps board order without sorting.
	perList := make([][]record.Record, len(lists))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(DefaultListWorkers)
	for i, l := range lists {
		id := l.Get("id").String()
		name := l.Get("name").String()
		if id == "" {
			log.Warn("skipping list without id", zap.String("list", name))
			continue
		}

		g.Go(func() error {
			params := f.auth()
			params.Set("members", "true")
			params.Set("member_fields", "fullName")
			cards := &fetch.CursorFetcher{
				Client: f.Client,
				URL:    fmt.Sprintf("%s/lists/%s/cards", f.BaseURL, url.PathEscape(id)),
				Params: params,
				Limit:  f.PageLimit,
				Logger: log,
			}
			recs, err := cards.FetchAll(gctx)
			if err != nil {
				return fmt.Errorf("trello: list %q: %w", name, err)
			}
			for _, r := range recs {
				r[listNameKey] = name
			}
			log.Debug("list fetched", zap.String("list", name), zap.Int("cards", len(recs)))
			perList[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []record.Record
	for _, recs := range perList {
		all = append(all, recs...)
	}
	return all, nil
}

// CardsTable holds one row per card.
var CardsTable = schema.Table{
	Name: "trello_cards",
	Columns: []schema.Column{
		{Name: "card_id", Type: schema.Text},
		{Name: "card_name", Type: schema.Text},
		{Name: "due_date", Type: schema.DateTime},
		{Name: "list_name", Type: schema.Text},
		{Name: "member_id", Type: schema.Text},
		{Name: "member_name", Type: schema.Text},
	},
	PrimaryKey: []string{"card_id"},
	Mode:       schema.Upsert,
}

// CardsMapping joins a card's members into comma-separated ids and names.
var CardsMapping = normalize.Mapping{Rules: []normalize.Rule{
	{Column: "card_id", Extract: normalize.Field("id")},
	{Column: "card_name", Extract: normalize.NullableField("name")},
	{Column: "due_date", Extract: normalize.DateTime("due")},
	{Column: "list_name", Extract: normalize.Field(listNameKey)},
	{Column: "member_id", Extract: normalize.Pluck([]string{"members"}, "id")},
	{Column: "member_name", Extract: normalize.Pluck([]string{"members"}, "fullName")},
}}

// Source addresses one board.
type Source struct {
	Client    fetch.JSONGetter
	BaseURL   string
	APIKey    string
	Token     string
	BoardID   string
	PageLimit int
	Logger    *zap.Logger
}

// CardsDataset returns the trello_cards dataset.
func CardsDataset(s Source) pipeline.Dataset {
	return pipeline.Dataset{
		Name: Cards,
		Fetcher: &BoardFetcher{
			Client:    s.Client,
			BaseURL:   s.BaseURL,
			APIKey:    s.APIKey,
			Token:     s.Token,
			BoardID:   s.BoardID,
			PageLimit: s.PageLimit,
			Logger:    s.Logger,
		},
		Mapping: CardsMapping,
		Table:   CardsTable,
	}
}
