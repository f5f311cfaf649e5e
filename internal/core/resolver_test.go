package core

import (
	"context"
	"slices"
	"testing"
)

func resolverRow(receipt, stylist, service string) NormalizedRow {
	return NormalizedRow{ReceiptNo: receipt, StylistName: stylist, ServiceName: service}
}

func TestResolver_Resolve(t *testing.T) {
	catalog := &fakeCatalog{
		stylists: map[string]int64{"anna": 1, "ben": 2},
		services: map[string]int64{"cut": 10, "colour": 11, NewServiceSentinel: 99},
	}
	r := NewResolver(catalog)

	rows := []NormalizedRow{
		resolverRow("R1", "Anna", "Cut"),
		resolverRow("R2", "BEN", "colour"),
		resolverRow("R3", "anna", "Balayage"),
		resolverRow("R4", "Ben", "balayage"),
	}

	res, err := r.Resolve(context.Background(), rows)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if catalog.stylistLookups != 1 || catalog.serviceLookups != 1 {
		t.Errorf("lookups = %d stylist, %d service; want 1 each", catalog.stylistLookups, catalog.serviceLookups)
	}

	want := []struct {
		stylistID, serviceID int64
		service              string
	}{
		{1, 10, "Cut"},
		{2, 11, "colour"},
		{1, 99, NewServiceSentinel},
		{2, 99, NewServiceSentinel},
	}
	if len(res.Rows) != len(want) {
		t.Fatalf("len(Rows) = %d, want %d", len(res.Rows), len(want))
	}
	for i, w := range want {
		got := res.Rows[i]
		if got.StylistID != w.stylistID || got.ServiceID != w.serviceID || got.ServiceName != w.service {
			t.Errorf("Rows[%d] = {%d %d %q}, want {%d %d %q}",
				i, got.StylistID, got.ServiceID, got.ServiceName, w.stylistID, w.serviceID, w.service)
		}
	}

	if !slices.Equal(res.Rewritten, []string{"Balayage", "balayage"}) {
		t.Errorf("Rewritten = %v, want [Balayage balayage]", res.Rewritten)
	}
}

func TestResolver_UnknownStylistIsFatal(t *testing.T) {
	catalog := &fakeCatalog{
		stylists: map[string]int64{"anna": 1},
		services: map[string]int64{NewServiceSentinel: 99},
	}
	r := NewResolver(catalog)

	_, err := r.Resolve(context.Background(), []NormalizedRow{
		resolverRow("R1", "Zed", "Cut"),
		resolverRow("R2", "Anna", "Cut"),
		resolverRow("R3", "Bob", "Cut"),
		resolverRow("R4", "zed", "Cut"),
	})

	ie, ok := AsImportError(err)
	if !ok || ie.Kind != KindUnknownStylist {
		t.Fatalf("error = %v, want UnknownStylist", err)
	}
	if !slices.Equal(ie.Names, []string{"Bob", "Zed"}) {
		t.Errorf("Names = %v, want [Bob Zed]", ie.Names)
	}
	if catalog.serviceLookups != 0 {
		t.Errorf("service lookups = %d, want 0 after stylist failure", catalog.serviceLookups)
	}
}

func TestResolver_MissingSentinel(t *testing.T) {
	catalog := &fakeCatalog{
		stylists: map[string]int64{"anna": 1},
		services: map[string]int64{"cut": 10},
	}
	r := NewResolver(catalog)

	if _, err := r.Resolve(context.Background(), []NormalizedRow{resolverRow("R1", "Anna", "Cut")}); err != nil {
		t.Errorf("known service should resolve without the sentinel: %v", err)
	}

	_, err := r.Resolve(context.Background(), []NormalizedRow{resolverRow("R1", "Anna", "Perm")})
	if KindOf(err) != KindUnknownService {
		t.Errorf("error kind = %q, want %q", KindOf(err), KindUnknownService)
	}
}
