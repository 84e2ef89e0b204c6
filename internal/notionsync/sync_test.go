package notionsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/habahaba/roundup-savings/internal/domain"
	"github.com/jomei/notionapi"
	"github.com/shopspring/decimal"
)

type MockNotionService struct {
	CreatePageFunc    func(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)
	UpdatePageFunc    func(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error)
	QueryDatabaseFunc func(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
}

func (m *MockNotionService) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	return m.CreatePageFunc(ctx, databaseID, properties)
}

func (m *MockNotionService) UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error) {
	return m.UpdatePageFunc(ctx, pageID, properties)
}

func (m *MockNotionService) QueryDatabase(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	return m.QueryDatabaseFunc(ctx, databaseID, filter)
}

// fakeNotion is an in-memory journal database keyed by transaction id.
type fakeNotion struct {
	pages   map[string]notionapi.Properties
	created int
	updated int
}

func newFakeNotion() (*fakeNotion, *MockNotionService) {
	f := &fakeNotion{pages: map[string]notionapi.Properties{}}
	mock := &MockNotionService{
		QueryDatabaseFunc: func(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
			pf, ok := req.Filter.(notionapi.PropertyFilter)
			if !ok || pf.RichText == nil {
				return nil, errors.New("unexpected filter")
			}
			resp := &notionapi.DatabaseQueryResponse{}
			if _, ok := f.pages[pf.RichText.Equals]; ok {
				resp.Results = []notionapi.Page{{
					ID: notionapi.ObjectID("page-" + pf.RichText.Equals),
					Properties: notionapi.Properties{
						PropTransactionID: &notionapi.TitleProperty{
							Title: []notionapi.RichText{{PlainText: pf.RichText.Equals}},
						},
					},
				}}
			}
			return resp, nil
		},
		CreatePageFunc: func(ctx context.Context, databaseID string, props notionapi.Properties) (*notionapi.Page, error) {
			id := props[PropTransactionID].(notionapi.TitleProperty).Title[0].Text.Content
			f.pages[id] = props
			f.created++
			return &notionapi.Page{ID: notionapi.ObjectID("page-" + id)}, nil
		},
		UpdatePageFunc: func(ctx context.Context, pageID string, props notionapi.Properties) (*notionapi.Page, error) {
			id := props[PropTransactionID].(notionapi.TitleProperty).Title[0].Text.Content
			if "page-"+id != pageID {
				return nil, errors.New("page id mismatch")
			}
			f.pages[id] = props
			f.updated++
			return &notionapi.Page{ID: notionapi.ObjectID(pageID)}, nil
		},
	}
	return f, mock
}

func sampleTx(id string, status domain.Status) domain.Transaction {
	at := time.Date(2025, 4, 1, 9, 30, 0, 0, time.UTC)
	return domain.Transaction{
		ID:          id,
		UserID:      "u1",
		Kind:        domain.KindRoundup,
		AmountSpent: decimal.RequireFromString("233"),
		RoundedTo:   decimal.RequireFromString("250"),
		AmountSaved: decimal.RequireFromString("17"),
		Rationale:   "Small purchase",
		Source:      domain.SourceBasic,
		Status:      status,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
}

func TestSyncer_UpsertCreatesThenUpdates(t *testing.T) {
	fake, mock := newFakeNotion()
	s := NewSyncer(mock, "db-1")
	ctx := context.Background()

	created, err := s.Upsert(ctx, sampleTx("tx-1", domain.StatusPending))
	if err != nil || !created {
		t.Fatalf("first Upsert() = %v, %v", created, err)
	}

	created, err = s.Upsert(ctx, sampleTx("tx-1", domain.StatusCompleted))
	if err != nil || created {
		t.Fatalf("second Upsert() = %v, %v", created, err)
	}

	if fake.created != 1 || fake.updated != 1 {
		t.Errorf("created=%d updated=%d", fake.created, fake.updated)
	}
	status := fake.pages["tx-1"][PropStatus].(notionapi.SelectProperty)
	if status.Select.Name != "completed" {
		t.Errorf("Status = %s", status.Select.Name)
	}
}

func TestSyncer_HandleEvent(t *testing.T) {
	fake, mock := newFakeNotion()
	s := NewSyncer(mock, "db-1")

	err := s.HandleEvent(context.Background(), domain.TransactionEvent{
		Type:        domain.EventTransactionCreated,
		Transaction: sampleTx("tx-9", domain.StatusPending),
	})
	if err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	if _, ok := fake.pages["tx-9"]; !ok {
		t.Error("page not created")
	}
}

func TestSyncer_UpsertQueryError(t *testing.T) {
	mock := &MockNotionService{
		QueryDatabaseFunc: func(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
			return nil, errors.New("rate limited")
		},
	}
	s := NewSyncer(mock, "db-1")
	if _, err := s.Upsert(context.Background(), sampleTx("tx-1", domain.StatusPending)); err == nil {
		t.Error("expected error")
	}
}

func TestSyncer_SyncAll(t *testing.T) {
	fake, mock := newFakeNotion()
	create := mock.CreatePageFunc
	mock.CreatePageFunc = func(ctx context.Context, databaseID string, props notionapi.Properties) (*notionapi.Page, error) {
		if props[PropTransactionID].(notionapi.TitleProperty).Title[0].Text.Content == "tx-bad" {
			return nil, errors.New("validation error")
		}
		return create(ctx, databaseID, props)
	}
	fake.pages["tx-1"] = notionapi.Properties{}

	s := NewSyncer(mock, "db-1")
	txs := []domain.Transaction{
		sampleTx("tx-1", domain.StatusCompleted),
		sampleTx("tx-2", domain.StatusPending),
		sampleTx("tx-bad", domain.StatusPending),
	}

	res, err := s.SyncAll(context.Background(), txs, false)
	if err != nil {
		t.Fatalf("SyncAll() error = %v", err)
	}
	if res.Created != 1 || res.Updated != 1 || res.Failed != 1 {
		t.Errorf("result = %+v", res)
	}

	dry, err := s.SyncAll(context.Background(), txs, true)
	if err != nil || dry != (SyncResult{}) {
		t.Errorf("dry run = %+v, %v", dry, err)
	}
}

func TestTransactionToNotionProperties(t *testing.T) {
	tx := sampleTx("tx-1", domain.StatusPending)
	tx.Reference = "ref-1"
	props := TransactionToNotionProperties(tx)

	if got := props[PropSaved].(notionapi.NumberProperty).Number; got != 17 {
		t.Errorf("Saved = %v", got)
	}
	if got := props[PropRoundedTo].(notionapi.NumberProperty).Number; got != 250 {
		t.Errorf("Rounded To = %v", got)
	}
	if got := props[PropCurrency].(notionapi.SelectProperty).Select.Name; got != "KES" {
		t.Errorf("Currency = %v", got)
	}
	if _, ok := props[PropReference]; !ok {
		t.Error("Reference missing")
	}

	w := domain.NewWithdrawal("w1", "u1", "", decimal.NewFromInt(40), "", time.Now())
	wprops := TransactionToNotionProperties(w)
	if got := wprops[PropSaved].(notionapi.NumberProperty).Number; got != -40 {
		t.Errorf("withdrawal Saved = %v", got)
	}
	if _, ok := wprops[PropSource]; ok {
		t.Error("withdrawal should have no decision source")
	}
	if _, ok := wprops[PropReference]; ok {
		t.Error("empty reference should be omitted")
	}
}
