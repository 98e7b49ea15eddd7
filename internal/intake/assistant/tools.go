package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/pricewatch/intake-core/internal/intake/model"
)

const (
	ToolListStores    = "list_supported_stores"
	ToolCheckStoreURL = "check_store_link"
)

type ListStoresInput struct {
	Country string `json:"country,omitempty"`
}

type ListStoresOutput struct {
	Stores []model.Store `json:"stores"`
	Total  int           `json:"total"`
}

func createListStoresTool() tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolListStores,
			Desc: "List the online stores whose prices can be watched. Use it whenever the user asks whether a store or website is supported.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"country": {
					Type: "string",
					Desc: "Optional ISO 3166 alpha-2 country code to filter stores, e.g. IL or US",
				},
			}),
		},
		func(ctx context.Context, in *ListStoresInput) (*ListStoresOutput, error) {
			country := strings.ToUpper(strings.TrimSpace(in.Country))
			var stores []model.Store
			for _, s := range model.SupportedStores {
				if country != "" && s.Country != country {
					continue
				}
				stores = append(stores, s)
			}
			return &ListStoresOutput{Stores: stores, Total: len(stores)}, nil
		},
	)
}

type CheckStoreURLInput struct {
	URL string `json:"url"`
}

type CheckStoreURLOutput struct {
	Supported bool         `json:"supported"`
	Store     *model.Store `json:"store,omitempty"`
}

func createCheckStoreURLTool() tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolCheckStoreURL,
			Desc: "Check whether a product link belongs to a supported store. Use it when the user shares a link and asks if it can be watched.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"url": {
					Type:     "string",
					Desc:     "The full product link, starting with http:// or https://",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *CheckStoreURLInput) (*CheckStoreURLOutput, error) {
			if strings.TrimSpace(in.URL) == "" {
				return nil, fmt.Errorf("url is required")
			}
			store, ok := model.StoreForURL(in.URL)
			if !ok {
				return &CheckStoreURLOutput{Supported: false}, nil
			}
			return &CheckStoreURLOutput{Supported: true, Store: &store}, nil
		},
	)
}

// assistantTools returns the tools the assistant model may call.
func assistantTools() []tool.BaseTool {
	return []tool.BaseTool{createListStoresTool(), createCheckStoreURLTool()}
}

func toolInfos(ctx context.Context, tools []tool.BaseTool) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}
