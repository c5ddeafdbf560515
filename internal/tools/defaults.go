package tools

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// DefaultCatalog is the grocery assistant's tool set, minus any disabled names.
func DefaultCatalog(disabled ...string) *Catalog {
	c := NewCatalog(defaultDefinitions()...)
	for _, name := range disabled {
		c.Remove(strings.TrimSpace(name))
	}
	return c
}

func defaultDefinitions() []Definition {
	return []Definition{
		// read
		{
			Kind: KindRead,
			Tool: mcp.NewTool("get_pantry_items",
				mcp.WithDescription("List the items currently in the user's pantry with quantities."),
				mcp.WithString("category", mcp.Description("Optional category filter, e.g. dairy")),
			),
		},
		{
			Kind: KindRead,
			Tool: mcp.NewTool("get_low_stock_items",
				mcp.WithDescription("List pantry items that are running low or out of stock."),
			),
		},
		{
			Kind: KindRead,
			Tool: mcp.NewTool("get_shopping_lists",
				mcp.WithDescription("List the user's shopping lists with their budgets."),
			),
		},
		{
			Kind: KindRead,
			Tool: mcp.NewTool("get_list_items",
				mcp.WithDescription("List the items on one shopping list."),
				mcp.WithString("list_id", mcp.Description("Shopping list id")),
				mcp.WithString("list_name", mcp.Description("Shopping list name when the id is unknown")),
			),
		},
		{
			Kind: KindRead,
			Tool: mcp.NewTool("get_budget_summary",
				mcp.WithDescription("Summarize spending against the budget of a list or of the current month."),
				mcp.WithString("list_id", mcp.Description("Optional shopping list id")),
			),
		},
		{
			Kind: KindRead,
			Tool: mcp.NewTool("estimate_price",
				mcp.WithDescription("Estimate the price of an item using the pricing catalog."),
				mcp.WithString("item_name", mcp.Required(), mcp.Description("Item to price")),
				mcp.WithNumber("quantity", mcp.Description("Quantity, defaults to 1")),
			),
		},

		// write
		{
			Kind: KindWrite,
			Tool: mcp.NewTool("add_list_item",
				mcp.WithDescription("Add an item to a shopping list."),
				mcp.WithString("list_id", mcp.Description("Shopping list id")),
				mcp.WithString("list_name", mcp.Description("Shopping list name when the id is unknown")),
				mcp.WithString("item_name", mcp.Required(), mcp.Description("Item to add")),
				mcp.WithNumber("quantity", mcp.Description("Quantity, defaults to 1")),
			),
		},
		{
			Kind: KindWrite,
			Tool: mcp.NewTool("create_list",
				mcp.WithDescription("Create a new shopping list, optionally with a budget."),
				mcp.WithString("name", mcp.Required(), mcp.Description("List name")),
				mcp.WithNumber("budget", mcp.Description("Budget amount")),
			),
		},
		{
			Kind: KindWrite,
			Tool: mcp.NewTool("add_pantry_item",
				mcp.WithDescription("Add an item to the pantry."),
				mcp.WithString("item_name", mcp.Required(), mcp.Description("Item to add")),
				mcp.WithNumber("quantity", mcp.Description("Quantity, defaults to 1")),
				mcp.WithString("unit", mcp.Description("Unit, e.g. kg or pack")),
			),
		},
		{
			Kind: KindWrite,
			Tool: mcp.NewTool("update_item_quantity",
				mcp.WithDescription("Change the quantity of a pantry or list item."),
				mcp.WithString("item_id", mcp.Description("Item id")),
				mcp.WithString("item_name", mcp.Description("Item name when the id is unknown")),
				mcp.WithNumber("quantity", mcp.Required(), mcp.Description("New quantity")),
			),
		},
		{
			Kind: KindWrite,
			Tool: mcp.NewTool("mark_item_bought",
				mcp.WithDescription("Mark a shopping list item as bought."),
				mcp.WithString("item_id", mcp.Description("Item id")),
				mcp.WithString("item_name", mcp.Description("Item name when the id is unknown")),
				mcp.WithNumber("price", mcp.Description("Price paid")),
			),
		},
		{
			Kind:                 KindWrite,
			RequiresConfirmation: true,
			Tool: mcp.NewTool("remove_list_item",
				mcp.WithDescription("Remove an item from a shopping list."),
				mcp.WithString("list_id", mcp.Description("Shopping list id")),
				mcp.WithString("item_id", mcp.Description("Item id")),
				mcp.WithString("item_name", mcp.Description("Item name when the id is unknown")),
			),
			Prompt: func(args map[string]any) string {
				if name := stringArg(args, "item_name"); name != "" {
					return fmt.Sprintf("Remove %s from your list? Say confirm or cancel.", name)
				}
				return ""
			},
			Done: "Okay, I removed it.",
		},
		{
			Kind:                 KindWrite,
			RequiresConfirmation: true,
			Tool: mcp.NewTool("delete_list",
				mcp.WithDescription("Delete a whole shopping list and its items."),
				mcp.WithString("list_id", mcp.Description("Shopping list id")),
				mcp.WithString("list_name", mcp.Description("Shopping list name when the id is unknown")),
			),
			Prompt: func(args map[string]any) string {
				if name := stringArg(args, "list_name"); name != "" {
					return fmt.Sprintf("Delete your %s list? Say confirm or cancel.", name)
				}
				return ""
			},
			Done: "Okay, the list is deleted.",
		},
	}
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func humanize(name string) string {
	return strings.ReplaceAll(name, "_", " ")
}
