package tools

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HanTheDev/tool-gateway/internal/db"
	"github.com/HanTheDev/tool-gateway/internal/models"
	"github.com/HanTheDev/tool-gateway/internal/rpc"
)

type pushContextArgs struct {
	TenantID string          `json:"tenant_id"`
	ClientID string          `json:"client_id"`
	Source   string          `json:"source"`
	Data     json.RawMessage `json:"data"`
}

type pushContextResult struct {
	OK        bool      `json:"ok"`
	Source    string    `json:"source"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ts *toolset) pushContext() rpc.Tool {
	return rpc.Private(
		mcp.NewTool(string(PushContext),
			mcp.WithDescription("Store a context snapshot under a source name, replacing any previous snapshot for that source"),
			mcp.WithString("source", mcp.Required(), mcp.MinLength(1), mcp.Description("Name of the context source, e.g. notes or inbox")),
			mcp.WithObject("data", mcp.Required(), mcp.Description("Snapshot payload; replaces the stored value wholesale")),
			mcp.WithString("tenant_id", mcp.Description("Optional; must equal the authenticated tenant")),
		),
		func(ctx context.Context, tenant *models.Tenant, args pushContextArgs) (any, error) {
			if err := checkTenant(tenant, args.TenantID, args.ClientID); err != nil {
				return nil, err
			}
			record, err := ts.Contexts.PushContext(ctx, tenant.ID, args.Source, args.Data)
			if err != nil {
				return nil, err
			}
			return pushContextResult{OK: true, Source: record.Source, UpdatedAt: record.UpdatedAt}, nil
		},
	)
}

type getContextArgs struct {
	TenantID string `json:"tenant_id"`
	ClientID string `json:"client_id"`
	Source   string `json:"source"`
}

type getContextResult struct {
	Records []*models.ContextRecord `json:"records"`
	Count   int                     `json:"count"`
}

func (ts *toolset) getContext() rpc.Tool {
	return rpc.Private(
		mcp.NewTool(string(GetContext),
			mcp.WithDescription("Read context snapshots: one source, or all sources newest first"),
			mcp.WithString("source", mcp.Description("Return only this source")),
			mcp.WithString("tenant_id", mcp.Description("Optional; must equal the authenticated tenant")),
		),
		func(ctx context.Context, tenant *models.Tenant, args getContextArgs) (any, error) {
			if err := checkTenant(tenant, args.TenantID, args.ClientID); err != nil {
				return nil, err
			}

			records := []*models.ContextRecord{}
			if args.Source != "" {
				record, err := ts.Contexts.GetContext(ctx, tenant.ID, args.Source)
				switch {
				case errors.Is(err, db.ErrNotFound):
				case err != nil:
					return nil, err
				default:
					records = append(records, record)
				}
			} else {
				all, err := ts.Contexts.ListContexts(ctx, tenant.ID)
				if err != nil {
					return nil, err
				}
				records = append(records, all...)
			}
			return getContextResult{Records: records, Count: len(records)}, nil
		},
	)
}
