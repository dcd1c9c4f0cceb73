package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineItem_Normalize_DerivesUnitNetWeight(t *testing.T) {
	li := LineItem{NetWeight: 10, Quantity: 2, UnitNetWeight: 0}
	li.Normalize()
	assert.Equal(t, 5.0, li.UnitNetWeight)
	assert.Equal(t, 10.0, li.NetWeight)
}

func TestLineItem_Normalize_DerivesNetWeight(t *testing.T) {
	li := LineItem{UnitNetWeight: 5, Quantity: 2, NetWeight: 0}
	li.Normalize()
	assert.Equal(t, 10.0, li.NetWeight)
	assert.Equal(t, 5.0, li.UnitNetWeight)
}

func TestLineItem_Normalize_ZeroQuantityNoop(t *testing.T) {
	li := LineItem{NetWeight: 10, Quantity: 0}
	li.Normalize()
	assert.Equal(t, 0.0, li.UnitNetWeight)
}

func TestLineItem_Normalize_Idempotent(t *testing.T) {
	li := LineItem{NetWeight: 9, Quantity: 3}
	li.Normalize()
	li.Normalize()
	assert.Equal(t, 3.0, li.UnitNetWeight)
	assert.Equal(t, 9.0, li.NetWeight)
}

func TestCoerceFloat(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want float64
	}{
		{"float", 12.5, 12.5},
		{"int", 7, 7},
		{"numeric string", "42.5", 42.5},
		{"thousands separators", "1,234.50", 1234.5},
		{"garbage string", "n/a", 0},
		{"nil", nil, 0},
		{"bool", true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CoerceFloat(tt.in))
		})
	}
}

func TestCoerceString(t *testing.T) {
	assert.Equal(t, "ABC", CoerceString("ABC"))
	assert.Equal(t, "12", CoerceString(12.0))
	assert.Equal(t, "", CoerceString(nil))
}

func TestSessionStatus_Terminal(t *testing.T) {
	assert.False(t, StatusRunning.Terminal())
	assert.False(t, StatusIdle.Terminal())
	assert.True(t, StatusSuccess.Terminal())
	assert.True(t, StatusFailure.Terminal())
	assert.True(t, StatusPartial.Terminal())
}

func TestPartialExtractionData_Empty(t *testing.T) {
	var p *PartialExtractionData
	assert.True(t, p.Empty())
	assert.True(t, (&PartialExtractionData{}).Empty())
	assert.False(t, (&PartialExtractionData{Metadata: &InvoiceRecord{}}).Empty())
	assert.False(t, (&PartialExtractionData{LineItems: []LineItem{{}}}).Empty())
}

func TestExtractionSession_Clone_Independent(t *testing.T) {
	s := &ExtractionSession{
		ID:     "s1",
		Status: StatusRunning,
		Events: []TraceEvent{{ID: "e1", Step: StepInit}},
	}
	cp := s.Clone()
	cp.Events[0].Message = "mutated"
	cp.Status = StatusSuccess

	assert.Equal(t, "", s.Events[0].Message)
	assert.Equal(t, StatusRunning, s.Status)
}
