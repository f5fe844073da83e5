package model

import "testing"

func TestStatusValid(t *testing.T) {
	t.Parallel()

	for _, s := range []Status{StatusInitial, StatusProcessing, StatusProfiled, StatusEnhanced, StatusFailed} {
		if !s.Valid() {
			t.Errorf("expected %q to be valid", s)
		}
	}
	for _, s := range []Status{"", "initial", "DONE"} {
		if s.Valid() {
			t.Errorf("expected %q to be invalid", s)
		}
	}
}
