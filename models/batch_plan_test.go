package models

import (
	"errors"
	"testing"
	"time"

	"github.com/West13lue/stock-cbd-manager-sub000/utils"
)

func testBatches() []*Batch {
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(24 * time.Hour)
	return []*Batch{
		{BatchId: "a", ProductId: "p1", Grams: grams("10"), OriginalGrams: grams("10"), Status: BatchStatusActive, CreatedAt: t1},
		{BatchId: "b", ProductId: "p1", Grams: grams("10"), OriginalGrams: grams("10"), Status: BatchStatusActive, CreatedAt: t2},
	}
}

func TestPlanConsumptionFifo(t *testing.T) {
	batches := testBatches()

	plan, err := planConsumption(batches, grams("15"))
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	// oldest lot drains first, newest keeps the remainder
	if !batches[0].Grams.IsZero() || batches[0].Status != BatchStatusDepleted {
		t.Fatalf("lot a: grams=%s status=%s, want 0/Depleted", batches[0].Grams, batches[0].Status)
	}
	if !batches[1].Grams.Equal(grams("5")) || batches[1].Status != BatchStatusActive {
		t.Fatalf("lot b: grams=%s status=%s, want 5/Active", batches[1].Grams, batches[1].Status)
	}

	if len(plan.ConsumedFrom) != 2 {
		t.Fatalf("consumed from %d lots, want 2", len(plan.ConsumedFrom))
	}
	if plan.ConsumedFrom[0].BatchId != "a" || !plan.ConsumedFrom[0].Grams.Equal(grams("10")) {
		t.Fatalf("first consumption: %+v", plan.ConsumedFrom[0])
	}
	if plan.ConsumedFrom[1].BatchId != "b" || !plan.ConsumedFrom[1].Grams.Equal(grams("5")) {
		t.Fatalf("second consumption: %+v", plan.ConsumedFrom[1])
	}
}

func TestPlanConsumptionExactDepletion(t *testing.T) {
	batches := testBatches()

	if _, err := planConsumption(batches, grams("20")); err != nil {
		t.Fatalf("plan: %v", err)
	}
	for _, b := range batches {
		if !b.Grams.IsZero() || b.Status != BatchStatusDepleted {
			t.Fatalf("lot %s: grams=%s status=%s, want 0/Depleted", b.BatchId, b.Grams, b.Status)
		}
	}
}

func TestPlanConsumptionInsufficientStockNoSideEffects(t *testing.T) {
	batches := testBatches()

	_, err := planConsumption(batches, grams("25"))
	if !errors.Is(err, utils.ErrorInsufficientStock) {
		t.Fatalf("err = %v, want InsufficientStock", err)
	}
	for _, b := range batches {
		if !b.Grams.Equal(grams("10")) || b.Status != BatchStatusActive {
			t.Fatalf("lot %s must be untouched, got grams=%s status=%s", b.BatchId, b.Grams, b.Status)
		}
	}
}

func TestPlanConsumptionRejectsNonPositive(t *testing.T) {
	for _, qty := range []string{"0", "-3"} {
		var validationErr *utils.ValidationError
		_, err := planConsumption(testBatches(), grams(qty))
		if !errors.As(err, &validationErr) {
			t.Errorf("consume %s: err = %v, want ValidationError", qty, err)
		}
	}
}

func TestBuildBatchDefaults(t *testing.T) {
	batch := BuildBatch("demo.myshop", NewBatch{
		ProductId:    "p1",
		Grams:        grams("25"),
		PricePerGram: grams("1.2"),
	})
	if batch.BatchId == "" {
		t.Fatal("batch id must be assigned")
	}
	if !batch.OriginalGrams.Equal(batch.Grams) {
		t.Fatal("original grams must start equal to grams")
	}
	if batch.Status != BatchStatusActive {
		t.Fatalf("status = %s, want Active", batch.Status)
	}
	if batch.ExpiryType != ExpiryTypeNone {
		t.Fatalf("expiry type = %s, want None", batch.ExpiryType)
	}
}
