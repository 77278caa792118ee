package rank

import (
	"testing"

	"github.com/nmery/needscan/internal/types"
)

func mmrItems() []Item {
	// Two near-duplicate embeddings (1 and 2) and two dissimilar ones.
	return []Item{
		{ID: 1, Relevance: 9.0, Embedding: []float64{1, 0, 0}},
		{ID: 2, Relevance: 8.5, Embedding: []float64{0.99, 0.01, 0}},
		{ID: 3, Relevance: 7.0, Embedding: []float64{0, 1, 0}},
		{ID: 4, Relevance: 6.0, Embedding: []float64{0, 0, 1}},
	}
}

func TestRerankTopKZeroReturnsEmpty(t *testing.T) {
	if got := Rerank(mmrItems(), 0, 0.7); len(got) != 0 {
		t.Errorf("topK=0 returned %d selections, want 0", len(got))
	}
}

func TestRerankTopKAtLeastLenIsPureRelevance(t *testing.T) {
	for _, topK := range []int{4, 10} {
		got := Rerank(mmrItems(), topK, 0.7)
		if len(got) != 4 {
			t.Fatalf("topK=%d returned %d selections, want all 4", topK, len(got))
		}
		wantOrder := []int{1, 2, 3, 4}
		for i, sel := range got {
			if sel.ID != wantOrder[i] {
				t.Errorf("topK=%d position %d: id=%d, want %d (relevance order, no penalty)",
					topK, i, sel.ID, wantOrder[i])
			}
			if sel.MMRRank != i+1 {
				t.Errorf("position %d: mmr_rank=%d, want %d", i, sel.MMRRank, i+1)
			}
		}
	}
}

func TestRerankLambdaOneIsPlainRelevance(t *testing.T) {
	got := Rerank(mmrItems(), 3, 1.0)
	wantOrder := []int{1, 2, 3}
	if len(got) != 3 {
		t.Fatalf("got %d selections, want 3", len(got))
	}
	for i, sel := range got {
		if sel.ID != wantOrder[i] {
			t.Errorf("position %d: id=%d, want %d", i, sel.ID, wantOrder[i])
		}
	}
}

func TestRerankLambdaZeroAvoidsNearDuplicates(t *testing.T) {
	// With lambda=0 only redundancy matters: after picking item 1, its
	// near-duplicate (item 2) must lose to every dissimilar candidate.
	got := Rerank(mmrItems(), 3, 0.0)
	if len(got) != 3 {
		t.Fatalf("got %d selections, want 3", len(got))
	}
	for i, sel := range got[:3] {
		if sel.ID == 2 && i > 0 {
			t.Fatalf("near-duplicate selected at position %d while dissimilar candidates remained", i)
		}
	}
	picked := map[int]bool{}
	for _, sel := range got {
		picked[sel.ID] = true
	}
	if !picked[3] || !picked[4] {
		t.Errorf("dissimilar candidates should be selected before a near-duplicate: %v", picked)
	}
}

func TestRerankBalancesRelevanceAndDiversity(t *testing.T) {
	got := Rerank(mmrItems(), 2, 0.5)
	if len(got) != 2 {
		t.Fatalf("got %d selections, want 2", len(got))
	}
	if got[0].ID != 1 {
		t.Errorf("first pick = %d, want the most relevant item", got[0].ID)
	}
	if got[1].ID == 2 {
		t.Error("second pick is the near-duplicate; diversity penalty had no effect")
	}
}

func TestRerankEmptyInput(t *testing.T) {
	if got := Rerank(nil, 5, 0.7); got != nil {
		t.Errorf("nil input returned %v", got)
	}
}

func TestRerankBySectorGuaranteesRepresentation(t *testing.T) {
	// dev_tools dominates on relevance; without sector caps it would fill
	// the whole list.
	items := []Item{
		{ID: 1, Relevance: 9.5, Embedding: []float64{1, 0, 0}, Sector: types.SectorDevTools},
		{ID: 2, Relevance: 9.4, Embedding: []float64{0.9, 0.1, 0}, Sector: types.SectorDevTools},
		{ID: 3, Relevance: 9.3, Embedding: []float64{0.8, 0.2, 0}, Sector: types.SectorDevTools},
		{ID: 4, Relevance: 9.2, Embedding: []float64{0.7, 0.3, 0}, Sector: types.SectorDevTools},
		{ID: 5, Relevance: 4.0, Embedding: []float64{0, 1, 0}, Sector: types.SectorHealth},
		{ID: 6, Relevance: 3.0, Embedding: []float64{0, 0, 1}, Sector: types.SectorFinance},
	}

	got := RerankBySector(items, 4, 2, 0.7)
	if len(got) != 4 {
		t.Fatalf("got %d selections, want 4", len(got))
	}

	perSector := map[types.Sector]int{}
	for _, sel := range got {
		perSector[sel.Sector]++
	}
	if perSector[types.SectorDevTools] > 2 {
		t.Errorf("dev_tools took %d slots, cap is 2", perSector[types.SectorDevTools])
	}
	if perSector[types.SectorHealth] == 0 || perSector[types.SectorFinance] == 0 {
		t.Errorf("minor sectors squeezed out: %v", perSector)
	}

	// Ranks are reassigned after the merge re-sort.
	for i, sel := range got {
		if sel.MMRRank != i+1 {
			t.Errorf("position %d: mmr_rank=%d, want %d", i, sel.MMRRank, i+1)
		}
	}
}

func TestRerankIsDeterministic(t *testing.T) {
	first := Rerank(mmrItems(), 3, 0.7)
	for i := 0; i < 5; i++ {
		again := Rerank(mmrItems(), 3, 0.7)
		if len(again) != len(first) {
			t.Fatal("selection count diverged")
		}
		for j := range first {
			if again[j].ID != first[j].ID {
				t.Fatalf("run %d position %d: id=%d, want %d", i, j, again[j].ID, first[j].ID)
			}
		}
	}
}
