package domain

import (
	"math/rand"
	"testing"
)

func TestBasketRemove_DeletesAtOrBelowZero(t *testing.T) {
	b := Basket{}
	b.Add(7, 2)
	if !b.Remove(7, 5) {
		t.Fatalf("expected product 7 to be present")
	}
	if len(b) != 0 {
		t.Fatalf("expected empty basket, got %v", b)
	}
	if b.Remove(7, 1) {
		t.Fatalf("remove on absent product should report false")
	}
}

func TestBasketRemove_Decrements(t *testing.T) {
	b := Basket{}
	b.Add(1, 3)
	b.Add(1, 2)
	b.Remove(1, 4)
	if b[1] != 1 {
		t.Fatalf("expected qty 1, got %d", b[1])
	}
}

func TestBasketRemove_IgnoresNonPositiveQuantity(t *testing.T) {
	b := Basket{1: 2}
	if b.Remove(1, -3) || b.Remove(1, 0) {
		t.Fatalf("non-positive remove should report no change")
	}
	if b[1] != 2 {
		t.Fatalf("expected qty 2, got %d", b[1])
	}
}

func TestBasketAdd_RefusesPastMaxQuantity(t *testing.T) {
	b := Basket{}
	if !b.Add(7, MaxQuantity) {
		t.Fatalf("expected MaxQuantity to fit")
	}
	if b.Add(7, 1) {
		t.Fatalf("expected add past MaxQuantity to be refused")
	}
	if b[7] != MaxQuantity {
		t.Fatalf("expected qty %d, got %d", MaxQuantity, b[7])
	}
	if b.Add(8, MaxQuantity+1) {
		t.Fatalf("expected oversized add to be refused")
	}
	if _, ok := b[8]; ok {
		t.Fatalf("refused add must not create an entry")
	}
}

func TestBasketAddCapped_Saturates(t *testing.T) {
	b := Basket{4: MaxQuantity - 1}
	b.AddCapped(4, 10)
	b.AddCapped(5, -1)
	if b[4] != MaxQuantity {
		t.Fatalf("expected qty %d, got %d", MaxQuantity, b[4])
	}
	if _, ok := b[5]; ok {
		t.Fatalf("non-positive add must not create an entry")
	}
}

func TestBasket_QuantitiesStayPositive(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	b := Basket{}
	for i := 0; i < 2000; i++ {
		id := int64(rng.Intn(5))
		qty := rng.Intn(4) + 1
		if rng.Intn(2) == 0 {
			b.Add(id, qty)
		} else {
			before, had := b[id]
			b.Remove(id, qty)
			if had && qty >= before {
				if _, still := b[id]; still {
					t.Fatalf("step %d: entry %d should be deleted", i, id)
				}
			}
		}
		for pid, q := range b {
			if q < 1 {
				t.Fatalf("step %d: product %d has quantity %d", i, pid, q)
			}
		}
	}
}

func TestBasketEntries_SortedByProduct(t *testing.T) {
	b := Basket{9: 1, 3: 2, 5: 1}
	entries := b.Entries()
	if len(entries) != 3 || entries[0].ProductID != 3 || entries[1].ProductID != 5 || entries[2].ProductID != 9 {
		t.Fatalf("unexpected order %+v", entries)
	}
}
