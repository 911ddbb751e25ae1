package router

import "time"

// Cache namespaces for the commerce tool set.
const (
	NamespaceInventory = "inventory"
	NamespaceCatalog   = "catalog"
	NamespaceReports   = "reports"
)

// Capability groups for the commerce tool set.
const (
	GroupCommerce  = "commerce_api"
	GroupPayments  = "payments"
	GroupMarketing = "marketing"
)

// Staleness bounds per namespace. Inventory moves fast, the catalog slower,
// reports are effectively daily artifacts.
const (
	InventoryTTL = 2 * time.Minute
	CatalogTTL   = 5 * time.Minute
	ReportsTTL   = time.Hour
)

// DefaultTimeout bounds a live commerce capability call.
const DefaultTimeout = 15 * time.Second

// CommercePolicies returns the routing policy for every tool in the
// commerce set. Handlers are supplied by the integration layer; the policy
// table itself is fixed.
func CommercePolicies() map[string]Policy {
	read := func(ns string, ttl time.Duration) Policy {
		return Policy{
			Kind:      KindRead,
			Cacheable: true,
			TTL:       ttl,
			Namespace: ns,
			Timeout:   DefaultTimeout,
			Group:     GroupCommerce,
		}
	}
	mutate := func(group string, invalidates ...string) Policy {
		return Policy{
			Kind:        KindMutating,
			Queueable:   true,
			Invalidates: invalidates,
			Timeout:     DefaultTimeout,
			Group:       group,
		}
	}

	return map[string]Policy{
		"fetch_all_products":           read(NamespaceCatalog, CatalogTTL),
		"get_supplier_details":         read(NamespaceCatalog, CatalogTTL),
		"inventory_evaluation":         read(NamespaceInventory, InventoryTTL),
		"evaluate_multiple_inventory":  read(NamespaceInventory, InventoryTTL),
		"order_summary":                read(NamespaceReports, ReportsTTL),
		"generate_sales_report":        read(NamespaceReports, ReportsTTL),
		"generate_purchase_report":     read(NamespaceReports, ReportsTTL),
		"generate_profit_loss_report":  read(NamespaceReports, ReportsTTL),
		"analyze_low_selling_products": read(NamespaceReports, ReportsTTL),

		"create_order":               mutate(GroupCommerce, NamespaceInventory, NamespaceReports),
		"update_stock":               mutate(GroupCommerce, NamespaceInventory),
		"finalize_supplier_purchase": mutate(GroupCommerce, NamespaceInventory, NamespaceCatalog),
		"process_payment":            mutate(GroupPayments, NamespaceReports),
		"post_campaign":              mutate(GroupMarketing),
	}
}

// RegisterCommerce registers the full commerce tool set against a single
// handler resolver. resolve maps a tool name to its backing handler; the
// integration layer typically closes over an HTTP client for the commerce
// backend.
func RegisterCommerce(reg *Registry, resolve func(tool string) Handler) error {
	for tool, policy := range CommercePolicies() {
		if err := reg.Register(tool, resolve(tool), policy); err != nil {
			return err
		}
	}
	return nil
}
