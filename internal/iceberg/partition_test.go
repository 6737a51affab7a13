package iceberg

import (
	"testing"
	"time"
)

func TestPartitionKey_FieldOrderIrrelevant(t *testing.T) {
	a, err := partitionKeyOf(map[string]interface{}{"region": "eu", "day": int32(19000)})
	if err != nil {
		t.Fatal(err)
	}
	b, err := partitionKeyOf(map[string]interface{}{"day": int32(19000), "region": "eu"})
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("keys differ: %q vs %q", a, b)
	}
	if a != `day=19000,region="eu"` {
		t.Errorf("unexpected key %q", a)
	}
}

func TestPartitionKey_UnionUnwrapped(t *testing.T) {
	wrapped, _ := partitionKeyOf(map[string]interface{}{"region": map[string]interface{}{"string": "eu"}})
	plain, _ := partitionKeyOf(map[string]interface{}{"region": "eu"})
	if wrapped != plain {
		t.Errorf("union not unwrapped: %q vs %q", wrapped, plain)
	}
}

func TestPartitionKey_Values(t *testing.T) {
	tests := []struct {
		value interface{}
		want  PartitionKey
	}{
		{nil, "k=null"},
		{"1", `k="1"`},
		{int64(1), "k=1"},
		{[]byte{0xca, 0xfe}, "k=0xcafe"},
		{true, "k=true"},
		{2.5, "k=2.5"},
		{time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), "k=2024-01-02T03:04:05Z"},
	}
	for _, tt := range tests {
		got, err := partitionKeyOf(map[string]interface{}{"k": tt.value})
		if err != nil {
			t.Fatalf("%v: %v", tt.value, err)
		}
		if got != tt.want {
			t.Errorf("%#v: expected %q, got %q", tt.value, tt.want, got)
		}
	}
}

func TestPartitionKey_Unpartitioned(t *testing.T) {
	for _, rec := range []interface{}{nil, map[string]interface{}{}} {
		got, err := partitionKeyOf(rec)
		if err != nil {
			t.Fatal(err)
		}
		if got != Unpartitioned {
			t.Errorf("expected unpartitioned key, got %q", got)
		}
	}
	if _, err := partitionKeyOf("p1"); err == nil {
		t.Error("expected error for non-record partition")
	}
}
