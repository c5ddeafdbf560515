package tools

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func TestDefaultCatalog_ConfirmationTools(t *testing.T) {
	c := DefaultCatalog()

	held := map[string]bool{}
	for _, d := range c.List() {
		if d.RequiresConfirmation {
			held[d.Name()] = true
			if d.Kind != KindWrite {
				t.Fatalf("%s requires confirmation but is not a write tool", d.Name())
			}
		}
	}
	if len(held) != 2 || !held["delete_list"] || !held["remove_list_item"] {
		t.Fatalf("confirmation tools = %v", held)
	}

	d, _ := c.Get("remove_list_item")
	if got := d.ConfirmationPrompt(map[string]any{"item_name": "eggs"}); got != "Remove eggs from your list? Say confirm or cancel." {
		t.Fatalf("prompt = %q", got)
	}
	if got := d.ConfirmationPrompt(nil); got != "Do you want me to remove list item? Say confirm or cancel." {
		t.Fatalf("fallback prompt = %q", got)
	}
}

func TestDefaultCatalog_Disabled(t *testing.T) {
	full := DefaultCatalog()
	c := DefaultCatalog("delete_list", " estimate_price ")

	if c.Len() != full.Len()-2 {
		t.Fatalf("len = %d, want %d", c.Len(), full.Len()-2)
	}
	if _, ok := c.Get("delete_list"); ok {
		t.Fatalf("disabled tool still registered")
	}
}

func TestCatalog_RegisterKeepsOrder(t *testing.T) {
	c := NewCatalog(
		Definition{Kind: KindRead, Tool: mcp.NewTool("b")},
		Definition{Kind: KindRead, Tool: mcp.NewTool("a")},
	)
	c.Register(Definition{Kind: KindWrite, Tool: mcp.NewTool("b", mcp.WithDescription("replaced"))})
	c.Register(Definition{Kind: KindWrite, Tool: mcp.NewTool("c")})

	tools := c.MCPTools()
	if len(tools) != 3 || tools[0].Name != "b" || tools[1].Name != "a" || tools[2].Name != "c" {
		t.Fatalf("order = %v", tools)
	}
	if tools[0].Description != "replaced" {
		t.Fatalf("register did not replace b")
	}
	if names := c.Names(); names[0] != "a" {
		t.Fatalf("names not sorted: %v", names)
	}

	if !c.Remove("a") || c.Remove("a") {
		t.Fatalf("remove should succeed once")
	}
	if d, _ := c.Get("c"); d.DoneMessage() != "Done." {
		t.Fatalf("done = %q", d.DoneMessage())
	}
}
