package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// NewServiceSentinel replaces service names that are not in the catalog.
const NewServiceSentinel = "new-service"

// Resolution is the outcome of resolving a set of rows.
type Resolution struct {
	Rows []ResolvedRow

	// Rewritten lists the distinct service names replaced by the sentinel, sorted.
	Rewritten []string
}

// Resolver maps stylist and service names to catalog IDs.
//
// Unknown stylists are fatal because the stylist drives compensation.
// Unknown services are rewritten to NewServiceSentinel and kept.
type Resolver struct {
	catalog Catalog
}

// NewResolver creates a Resolver backed by catalog.
func NewResolver(catalog Catalog) *Resolver {
	return &Resolver{catalog: catalog}
}

// Resolve looks up every distinct stylist and service name with one catalog
// query each. Matching is case-insensitive and exact.
func (r *Resolver) Resolve(ctx context.Context, rows []NormalizedRow) (Resolution, error) {
	stylistNames := distinctFold(rows, func(row NormalizedRow) string { return row.StylistName })
	serviceNames := distinctFold(rows, func(row NormalizedRow) string { return row.ServiceName })

	stylists, err := r.catalog.LookupStylists(ctx, keys(stylistNames))
	if err != nil {
		return Resolution{}, fmt.Errorf("lookup stylists: %w", err)
	}

	var unknown []string
	for key, name := range stylistNames {
		if _, ok := stylists[key]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Resolution{}, errUnknownStylist(unknown)
	}

	lookup := append(keys(serviceNames), NewServiceSentinel)
	services, err := r.catalog.LookupServices(ctx, lookup)
	if err != nil {
		return Resolution{}, fmt.Errorf("lookup services: %w", err)
	}

	res := Resolution{Rows: make([]ResolvedRow, 0, len(rows))}
	rewritten := make(map[string]struct{})
	for _, row := range rows {
		serviceID, ok := services[strings.ToLower(row.ServiceName)]
		if !ok {
			sentinelID, found := services[NewServiceSentinel]
			if !found {
				return Resolution{}, errUnknownService([]string{NewServiceSentinel})
			}
			rewritten[row.ServiceName] = struct{}{}
			row.ServiceName = NewServiceSentinel
			serviceID = sentinelID
		}

		res.Rows = append(res.Rows, ResolvedRow{
			NormalizedRow: row,
			StylistID:     stylists[strings.ToLower(row.StylistName)],
			ServiceID:     serviceID,
		})
	}

	for name := range rewritten {
		res.Rewritten = append(res.Rewritten, name)
	}
	sort.Strings(res.Rewritten)

	return res, nil
}

// distinctFold returns lower-cased name -> first spelling seen.
func distinctFold(rows []NormalizedRow, field func(NormalizedRow) string) map[string]string {
	out := make(map[string]string)
	for _, row := range rows {
		name := field(row)
		key := strings.ToLower(name)
		if _, ok := out[key]; !ok {
			out[key] = name
		}
	}
	return out
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
