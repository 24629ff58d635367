package domain

import (
	"reflect"
	"testing"
)

func TestConnection_Name(t *testing.T) {
	c := NewConnection("reader", PositionRight, "writer", PositionLeft)
	if c.Name() != "from reader to writer" {
		t.Errorf("unexpected name %q", c.Name())
	}
}

func TestConnection_RenameEndpoint(t *testing.T) {
	c := NewConnection("reader", PositionRight, "writer", PositionLeft)

	c.RenameEndpoint("reader", "importer")
	if c.Source != "importer" || c.Destination != "writer" {
		t.Errorf("unexpected endpoints: %s → %s", c.Source, c.Destination)
	}
	if !c.HasEndpoint("importer") || c.HasEndpoint("reader") {
		t.Error("HasEndpoint should reflect the rename")
	}
}

func TestConnection_ConvertResources_NoFilters(t *testing.T) {
	c := NewConnection("store", PositionRight, "tool", PositionLeft)
	in := []Resource{
		NewDatabaseResource("store", "sqlite:///data.db"),
		NewFileResource("store", "data.csv"),
	}

	out := c.ConvertResources(in)
	if !reflect.DeepEqual(out, in) {
		t.Errorf("without filters resources pass unchanged: %v != %v", out, in)
	}
}

func TestConnection_ConvertResources_ScenarioFilters(t *testing.T) {
	c := NewConnection("store", PositionRight, "tool", PositionLeft)
	c.FilterSettings.SetFilterEnabled("sqlite:///data.db", FilterTypeScenario, "low", true)
	c.FilterSettings.SetFilterEnabled("sqlite:///data.db", FilterTypeScenario, "high", true)
	c.FilterSettings.SetFilterEnabled("sqlite:///data.db", FilterTypeScenario, "off", false)

	in := []Resource{
		NewDatabaseResource("store", "sqlite:///data.db"),
		NewFileResource("store", "data.csv"),
	}
	out := c.ConvertResources(in)

	// База размножается по включённым сценариям, файл проходит как есть.
	if len(out) != 3 {
		t.Fatalf("expected 3 resources, got %d: %v", len(out), out)
	}

	var scenarios []string
	var filterIDs []string
	for _, r := range out {
		if r.Type != ResourceTypeDatabase {
			continue
		}
		scenarios = append(scenarios, r.Metadata["scenario"].(string))
		filterIDs = append(filterIDs, r.FilterID())
	}
	if !reflect.DeepEqual(scenarios, []string{"high", "low"}) {
		t.Errorf("expected scenarios [high low], got %v", scenarios)
	}
	if !reflect.DeepEqual(filterIDs, []string{"high - store", "low - store"}) {
		t.Errorf("expected filter ids, got %v", filterIDs)
	}

	// Исходный ресурс не мутируется.
	if in[0].Metadata != nil {
		t.Error("ConvertResources must not mutate its input")
	}
}

func TestFilterSettings_EnabledFilterValues(t *testing.T) {
	fs := NewFilterSettings()
	if !fs.AutoOnline {
		t.Error("new filter settings default to auto online")
	}
	if fs.HasFilters() {
		t.Error("fresh settings have no filters")
	}

	fs.SetFilterEnabled("db", FilterTypeScenario, "b", true)
	fs.SetFilterEnabled("db", FilterTypeScenario, "a", true)
	fs.SetFilterEnabled("db", FilterTypeScenario, "c", false)

	enabled := fs.EnabledFilterValues("db", FilterTypeScenario)
	if !reflect.DeepEqual(enabled, []string{"a", "b"}) {
		t.Errorf("expected [a b], got %v", enabled)
	}
	if got := fs.EnabledFilterValues("other", FilterTypeScenario); got != nil {
		t.Errorf("unknown label should yield nil, got %v", got)
	}
}

func TestConnection_DictRoundTrip(t *testing.T) {
	c := NewConnection("reader", PositionRight, "writer", PositionTop)
	c.Options = map[string]bool{"use_memory_db": true}
	c.FilterSettings.AutoOnline = false
	c.FilterSettings.SetFilterEnabled("db", FilterTypeScenario, "base", true)

	restored, err := ConnectionFromDict(c.ToDict())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if restored.Source != "reader" || restored.SourcePosition != PositionRight {
		t.Errorf("unexpected source endpoint: %s/%s", restored.Source, restored.SourcePosition)
	}
	if restored.Destination != "writer" || restored.DestinationPosition != PositionTop {
		t.Errorf("unexpected destination endpoint: %s/%s", restored.Destination, restored.DestinationPosition)
	}
	if !restored.Options["use_memory_db"] {
		t.Error("options should survive the round trip")
	}
	if restored.FilterSettings.AutoOnline {
		t.Error("auto online flag should survive the round trip")
	}
	enabled := restored.FilterSettings.EnabledFilterValues("db", FilterTypeScenario)
	if !reflect.DeepEqual(enabled, []string{"base"}) {
		t.Errorf("expected enabled [base], got %v", enabled)
	}
}

func TestConnectionFromDict_Malformed(t *testing.T) {
	cases := []map[string]any{
		{},
		{"from": []any{"a"}, "to": []any{"b", "left"}},
		{"from": []any{"", "right"}, "to": []any{"b", "left"}},
	}
	for i, d := range cases {
		if _, err := ConnectionFromDict(d); err == nil {
			t.Errorf("case %d: expected error for malformed dict", i)
		}
	}
}
