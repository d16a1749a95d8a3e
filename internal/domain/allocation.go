package domain

import (
	"fmt"
	"sort"
	"strings"
)

type Allocation struct {
	ProductID string `json:"product_id"`
	StoreID   string `json:"store_id"`
}

// AllocationPairs expands products x stores into unique pairs. It covers the
// single-to-many, many-to-single and many-to-many cases alike.
func AllocationPairs(productIDs, storeIDs []string) ([]Allocation, error) {
	products := dedupeIDs(productIDs)
	stores := dedupeIDs(storeIDs)
	if len(products) == 0 || len(stores) == 0 {
		return nil, fmt.Errorf("%w: at least one product and one store are required", ErrInvalidInput)
	}
	out := make([]Allocation, 0, len(products)*len(stores))
	for _, productID := range products {
		for _, storeID := range stores {
			out = append(out, Allocation{ProductID: productID, StoreID: storeID})
		}
	}
	return out, nil
}

// ExpandVariants adds every linked variant of the selected products.
func ExpandVariants(productIDs []string, products map[string]Product) []string {
	out := append([]string(nil), productIDs...)
	for _, id := range productIDs {
		out = append(out, products[id].VariantIDs...)
	}
	return dedupeIDs(out)
}

// DiffStores returns the stores to add and to remove so that current becomes
// desired.
func DiffStores(current, desired []string) (added, removed []string) {
	have := make(map[string]struct{}, len(current))
	for _, id := range current {
		have[id] = struct{}{}
	}
	want := make(map[string]struct{}, len(desired))
	for _, id := range dedupeIDs(desired) {
		want[id] = struct{}{}
		if _, ok := have[id]; !ok {
			added = append(added, id)
		}
	}
	for _, id := range dedupeIDs(current) {
		if _, ok := want[id]; !ok {
			removed = append(removed, id)
		}
	}
	return added, removed
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
