package notionsync

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"
	"golang.org/x/time/rate"
)

// RequestsPerSecond is Notion's documented average request limit per integration.
const RequestsPerSecond = 3

// NotionClient implements NotionService over the Notion SDK. Calls wait on a
// shared limiter so long exports stay under the integration rate limit.
type NotionClient struct {
	pages     notionapi.PageService
	databases notionapi.DatabaseService
	limiter   *rate.Limiter
}

// NewNotionClient creates a client for the integration token.
func NewNotionClient(token string) *NotionClient {
	c := notionapi.NewClient(notionapi.Token(token))
	return &NotionClient{
		pages:     c.Page,
		databases: c.Database,
		limiter:   rate.NewLimiter(rate.Limit(RequestsPerSecond), 1),
	}
}

// CreatePage adds one row to databaseID.
func (n *NotionClient) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("CreatePage: %w", err)
	}

	page, err := n.pages.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(databaseID),
		},
		Properties: properties,
	})
	if err != nil {
		return nil, fmt.Errorf("CreatePage: database %s: %w", databaseID, err)
	}
	return page, nil
}

// QueryDatabase reads one page of databaseID rows.
func (n *NotionClient) QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("QueryDatabase: %w", err)
	}

	resp, err := n.databases.Query(ctx, notionapi.DatabaseID(databaseID), req)
	if err != nil {
		return nil, fmt.Errorf("QueryDatabase: database %s: %w", databaseID, err)
	}
	return resp, nil
}

var _ NotionService = (*NotionClient)(nil)
