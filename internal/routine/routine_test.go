package routine

import (
	"errors"
	"strings"
	"testing"
)

func TestRoutineInput_Validate(t *testing.T) {
	tests := []struct {
		name    string
		in      RoutineInput
		wantErr bool
	}{
		{"valid", RoutineInput{Name: "Fall 2025"}, false},
		{"missing name", RoutineInput{Semester: "Fall 2025"}, true},
		{"name too long", RoutineInput{Name: strings.Repeat("x", 201)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrValidation) {
				t.Errorf("Validate() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestSlotInput_Validate(t *testing.T) {
	tests := []struct {
		name    string
		in      SlotInput
		wantErr bool
	}{
		{"valid", SlotInput{DayOfWeek: "Sunday", StartTime: "09:00", EndTime: "10:30"}, false},
		{"bad day", SlotInput{DayOfWeek: "Funday", StartTime: "09:00", EndTime: "10:30"}, true},
		{"bad time", SlotInput{DayOfWeek: "Sunday", StartTime: "9am", EndTime: "10:30"}, true},
		{"missing end", SlotInput{DayOfWeek: "Sunday", StartTime: "09:00"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrValidation) {
				t.Errorf("Validate() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestTempID(t *testing.T) {
	id := NewTempID()
	if !IsTempID(id) {
		t.Errorf("IsTempID(%q) = false, want true", id)
	}
	if IsTempID("a3f0b1d2") {
		t.Error("IsTempID() accepted a server id")
	}
	if NewTempID() == id {
		t.Error("NewTempID() returned a duplicate")
	}
}

func TestPendingState_Text(t *testing.T) {
	for _, st := range []PendingState{
		StateClean, StatePendingCreate, StatePendingUpdate,
		StatePendingDelete, StatePendingActivation, StatePendingDeactivation,
	} {
		text, err := st.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v) failed: %v", st, err)
		}
		var back PendingState
		if err := back.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q) failed: %v", text, err)
		}
		if back != st {
			t.Errorf("round trip %v -> %q -> %v", st, text, back)
		}
	}

	var st PendingState
	if err := st.UnmarshalText([]byte("bogus")); err == nil {
		t.Error("UnmarshalText() accepted an unknown state")
	}
}

func TestPendingState_IsPending(t *testing.T) {
	if StateClean.IsPending() {
		t.Error("StateClean.IsPending() = true")
	}
	if !StatePendingDelete.IsPending() {
		t.Error("StatePendingDelete.IsPending() = false")
	}
}

func TestRoutineUpdate_Apply(t *testing.T) {
	name := "renamed"
	r := &Routine{ID: "r1", Name: "orig", Description: "keep", Semester: "Fall"}

	(&RoutineUpdate{Name: &name}).Apply(r)

	if r.Name != "renamed" {
		t.Errorf("Name = %q, want renamed", r.Name)
	}
	if r.Description != "keep" || r.Semester != "Fall" {
		t.Error("Apply() touched fields with nil updates")
	}
}

func TestRoutine_Clone(t *testing.T) {
	r := &Routine{
		ID:    "r1",
		Name:  "orig",
		Slots: []*Slot{{ID: "s1", RoutineID: "r1", StartTime: "09:00"}},
	}

	cp := r.Clone()
	cp.Name = "changed"
	cp.Slots[0].StartTime = "11:00"

	if r.Name != "orig" {
		t.Error("Clone() shares the routine header")
	}
	if r.Slots[0].StartTime != "09:00" {
		t.Error("Clone() shares slot pointers")
	}
}

func TestRoutine_RemoveSlot(t *testing.T) {
	r := &Routine{Slots: []*Slot{{ID: "s1"}, {ID: "s2"}}}

	if !r.RemoveSlot("s1") {
		t.Fatal("RemoveSlot(s1) = false")
	}
	if len(r.Slots) != 1 || r.Slots[0].ID != "s2" {
		t.Errorf("Slots = %v, want only s2", r.Slots)
	}
	if r.RemoveSlot("missing") {
		t.Error("RemoveSlot(missing) = true")
	}
}

func TestErrorClassifiers(t *testing.T) {
	if !IsRetryable(ErrTransient) || !IsRetryable(ErrOffline) {
		t.Error("transient and offline errors must be retryable")
	}
	if IsRetryable(ErrValidation) {
		t.Error("validation errors are not retryable")
	}
	if !IsRejected(ErrValidation) || !IsRejected(ErrConflict) {
		t.Error("validation and conflict errors must count as rejected")
	}
	if IsRejected(ErrTransient) {
		t.Error("transient errors are not rejections")
	}
}
