package services

import (
	"testing"

	"strapmon/models"
)

func TestEmployeeIndexLookup(t *testing.T) {
	t.Parallel()

	idx := NewEmployeeIndex([]models.Employee{
		{ID: 1, Name: "Kim", DeviceID: "S1"},
		{ID: 2, Name: "Lee", DeviceID: "S1"},
		{Name: "Unassigned"},
	})

	if idx.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", idx.Len())
	}
	if e, ok := idx.LookupEmployee(2, "S1"); !ok || e.Name != "Lee" {
		t.Fatalf("employee id should win over device id, got %+v", e)
	}
	if e, ok := idx.LookupEmployee(0, "S1"); !ok || e.Name != "Kim" {
		t.Fatalf("first assignment of a device should win, got %+v", e)
	}
	if e, ok := idx.LookupEmployee(99, "S1"); !ok || e.Name != "Kim" {
		t.Fatalf("unknown employee id should fall back to the device, got %+v", e)
	}
	if _, ok := idx.LookupEmployee(0, "S9"); ok {
		t.Fatalf("unknown device should not match")
	}

	e, _ := idx.LookupEmployee(1, "")
	e.Name = "changed"
	if again, _ := idx.LookupEmployee(1, ""); again.Name != "Kim" {
		t.Fatalf("lookups must return copies")
	}
}

func TestEmployeeIndexNil(t *testing.T) {
	t.Parallel()

	var idx *EmployeeIndex
	if _, ok := idx.LookupEmployee(1, "S1"); ok {
		t.Fatalf("nil index should never match")
	}
	if idx.Len() != 0 {
		t.Fatalf("nil index should be empty")
	}
}
