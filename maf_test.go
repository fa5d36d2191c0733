package qrscan_test

import (
	"testing"
	"time"

	qrscan "github.com/vestify/qrscan-go"
)

func TestMAF(t *testing.T) {
	m0 := &qrscan.MAF{}
	_, err := m0.Update(time.Millisecond)
	if err == nil {
		t.Errorf("missing error for MAF created without NewMAF")
	}

	m0, err = qrscan.NewMAF(3)
	if err != nil {
		t.Fatalf("making new MAF: %v", err)
	}

	r, err := m0.Update(3 * time.Millisecond)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if r != 3*time.Millisecond {
		t.Fatalf("unexpected result after first Update: %v", r)
	}
	r, _ = m0.Update(6 * time.Millisecond)
	if r != 4500*time.Microsecond {
		t.Fatalf("unexpected result after Update: %v", r)
	}
	r, _ = m0.Update(9 * time.Millisecond)
	if r != 6*time.Millisecond {
		t.Fatalf("unexpected result after Update: %v", r)
	}
	// Oldest value (3ms) drops out of the window.
	r, _ = m0.Update(12 * time.Millisecond)
	if r != 9*time.Millisecond {
		t.Fatalf("unexpected result after Update: %v", r)
	}

	_, err = m0.Update(-time.Millisecond)
	if err == nil {
		t.Fatalf("missing error for negative duration")
	}

	_, err = qrscan.NewMAF(0)
	if err == nil {
		t.Fatalf("missing error for new MAF with size 0")
	}
}
