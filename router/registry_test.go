package router

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func validReadPolicy() Policy {
	return Policy{
		Kind:      KindRead,
		Cacheable: true,
		TTL:       time.Minute,
		Namespace: NamespaceInventory,
		Timeout:   time.Second,
		Group:     GroupCommerce,
	}
}

func TestRegisterDuplicateFails(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("inventory_evaluation", okHandler, validReadPolicy()))
	err := reg.Register("inventory_evaluation", okHandler, validReadPolicy())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegisterRejectsInvalidPolicies(t *testing.T) {
	reg := NewRegistry()

	p := validReadPolicy()
	p.Kind = KindMutating
	assert.Error(t, reg.Register("a", okHandler, p), "mutating must not be cacheable")

	p = validReadPolicy()
	p.Queueable = true
	assert.Error(t, reg.Register("b", okHandler, p), "reads must not be queueable")

	p = validReadPolicy()
	p.Namespace = ""
	assert.Error(t, reg.Register("c", okHandler, p), "cacheable needs a namespace")

	p = validReadPolicy()
	p.Timeout = 0
	assert.Error(t, reg.Register("d", okHandler, p))

	p = validReadPolicy()
	p.Group = ""
	assert.Error(t, reg.Register("e", okHandler, p))

	assert.Error(t, reg.Register("f", nil, validReadPolicy()))
	assert.Error(t, reg.Register("", okHandler, validReadPolicy()))
}

func TestCommercePoliciesShape(t *testing.T) {
	policies := CommercePolicies()
	assert.Len(t, policies, 14)

	reads := []string{
		"fetch_all_products", "inventory_evaluation", "evaluate_multiple_inventory",
		"order_summary", "generate_sales_report", "generate_purchase_report",
		"generate_profit_loss_report", "analyze_low_selling_products",
		"get_supplier_details",
	}
	for _, tool := range reads {
		p, ok := policies[tool]
		require.True(t, ok, tool)
		assert.Equal(t, KindRead, p.Kind, tool)
		assert.True(t, p.Cacheable, tool)
		assert.NoError(t, p.Validate(), tool)
	}

	mutating := []string{
		"create_order", "process_payment", "update_stock",
		"finalize_supplier_purchase", "post_campaign",
	}
	for _, tool := range mutating {
		p, ok := policies[tool]
		require.True(t, ok, tool)
		assert.Equal(t, KindMutating, p.Kind, tool)
		assert.False(t, p.Cacheable, tool)
		assert.True(t, p.Queueable, tool)
		assert.NoError(t, p.Validate(), tool)
	}

	assert.Equal(t, InventoryTTL, policies["inventory_evaluation"].TTL)
	assert.Equal(t, CatalogTTL, policies["fetch_all_products"].TTL)
	assert.Equal(t, ReportsTTL, policies["generate_sales_report"].TTL)
	assert.Contains(t, policies["update_stock"].Invalidates, NamespaceInventory)
}

func TestRegisterCommerce(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, RegisterCommerce(reg, func(string) Handler { return okHandler }))
	assert.Len(t, reg.Tools(), 14)

	_, _, ok := reg.Lookup("update_stock")
	assert.True(t, ok)
	_, _, ok = reg.Lookup("unknown_tool")
	assert.False(t, ok)
}
