package domain

import "testing"

func TestResource_Equal(t *testing.T) {
	a := NewFileResource("writer", "out.csv")
	b := NewFileResource("writer", "out.csv")
	if !a.Equal(b) {
		t.Error("identical resources should be equal")
	}

	c := NewFileResource("other", "out.csv")
	if a.Equal(c) {
		t.Error("resources from different providers should differ")
	}

	// Прочая метадата не влияет на сравнение.
	b.Metadata = map[string]any{"note": "x"}
	if !a.Equal(b) {
		t.Error("metadata other than filter_id should not affect equality")
	}
}

func TestResource_Equal_FilteredCopies(t *testing.T) {
	base := NewDatabaseResource("store", "sqlite:///data.db")

	low := base.Clone()
	low.Metadata = map[string]any{"filter_id": FilterID("low", "store")}
	high := base.Clone()
	high.Metadata = map[string]any{"filter_id": FilterID("high", "store")}

	if low.Equal(high) {
		t.Error("differently filtered copies are distinct resources")
	}
	if low.Equal(base) {
		t.Error("a filtered copy differs from the unfiltered resource")
	}
}

func TestResource_Clone(t *testing.T) {
	r := NewDatabaseResource("store", "sqlite:///data.db")
	r.Metadata = map[string]any{"scenario": "low"}

	clone := r.Clone()
	clone.Metadata["scenario"] = "high"

	if r.Metadata["scenario"] != "low" {
		t.Error("mutating a clone must not touch the original")
	}
}

func TestMergeResources(t *testing.T) {
	shared := NewFileResource("a", "shared.csv")
	merged := MergeResources(
		[]Resource{shared, NewFileResource("a", "first.csv")},
		[]Resource{shared, NewFileResource("b", "second.csv")},
	)

	if len(merged) != 3 {
		t.Fatalf("expected 3 resources after dedup, got %d", len(merged))
	}
	// Детерминированный порядок: по источнику, затем по метке.
	labels := []string{merged[0].Label, merged[1].Label, merged[2].Label}
	expected := []string{"first.csv", "shared.csv", "second.csv"}
	for i := range expected {
		if labels[i] != expected[i] {
			t.Errorf("position %d: expected %q, got %q", i, expected[i], labels[i])
		}
	}
}

func TestMergeResources_KeepsFilteredCopies(t *testing.T) {
	base := NewDatabaseResource("store", "sqlite:///data.db")
	low := base.Clone()
	low.Metadata = map[string]any{"filter_id": FilterID("low", "store")}
	high := base.Clone()
	high.Metadata = map[string]any{"filter_id": FilterID("high", "store")}

	merged := MergeResources([]Resource{low, high})
	if len(merged) != 2 {
		t.Fatalf("filtered copies must not be deduplicated, got %d", len(merged))
	}
}

func TestResource_DictRoundTrip(t *testing.T) {
	r := NewTransientFileResource("tool", "result", "/tmp/result.dat")
	r.Metadata = map[string]any{"scenario": "base"}

	restored := ResourceFromDict(r.ToDict())
	if !restored.Equal(r) {
		t.Errorf("round trip changed the resource: %v != %v", restored, r)
	}
	if restored.Metadata["scenario"] != "base" {
		t.Error("metadata should survive the round trip")
	}
}
