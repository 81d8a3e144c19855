package core

import (
	"reflect"
	"testing"
)

var mapperFields = []FieldDefinition{
	{Key: "sku", Label: "SKU", Type: TypeString},
	{Key: "name", Label: "Product Name", Type: TypeString},
	{Key: "currency", Type: TypeCurrency, Default: "USD"},
	{Key: "note", Type: TypeString},
}

func TestMapRow(t *testing.T) {
	idx := MakeHeaderIndex([]string{"Code", "Title", "Code", "Extra"})
	fm := FieldMap{"sku": "Code", "name": "Title", "note": "Missing"}

	got := MapRow(mapperFields, idx, []string{"A1", "Shoe", "ignored"}, fm)
	want := MappedRow{"sku": "A1", "name": "Shoe", "currency": "USD", "note": nil}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MapRow = %#v, want %#v", got, want)
	}

	short := MapRow(mapperFields, idx, []string{"A2"}, fm)
	if short["name"] != nil {
		t.Errorf("short row name = %#v, want nil", short["name"])
	}
}

func TestIsEmptyRow(t *testing.T) {
	fm := FieldMap{"sku": "Code", "name": "Title"}
	tests := []struct {
		name string
		row  MappedRow
		want bool
	}{
		{"all blank", MappedRow{"sku": " ", "name": nil, "currency": "USD"}, true},
		{"one value", MappedRow{"sku": "", "name": "x"}, false},
	}
	for _, tt := range tests {
		if got := IsEmptyRow(tt.row, fm); got != tt.want {
			t.Errorf("%s: IsEmptyRow = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestItemIdentifier(t *testing.T) {
	tests := []struct {
		name string
		row  MappedRow
		want string
	}{
		{"sku first", MappedRow{"sku": "A1", "name": "Shoe"}, "A1"},
		{"falls back to name", MappedRow{"sku": " ", "name": "Shoe"}, "Shoe"},
		{"first declared field", MappedRow{"currency": "EUR"}, "EUR"},
		{"unknown", MappedRow{}, "Unknown"},
	}
	for _, tt := range tests {
		if got := ItemIdentifier(mapperFields, tt.row); got != tt.want {
			t.Errorf("%s: ItemIdentifier = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestSuggestFieldMap(t *testing.T) {
	got := SuggestFieldMap(mapperFields, []string{" SKU ", "product name", "Other"})
	want := FieldMap{"sku": " SKU ", "name": "product name"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SuggestFieldMap = %#v, want %#v", got, want)
	}
}
