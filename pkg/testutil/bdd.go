package testutil

import "testing"

// Given, When, and Then keep multi-step flows readable as nested subtests
// without pulling in a BDD framework. Steps run in order and a failed step
// stops the ones nested inside it.
func Given(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	if !t.Run("Given "+desc, fn) {
		t.FailNow()
	}
}

func When(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	if !t.Run("When "+desc, fn) {
		t.FailNow()
	}
}

func Then(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("Then "+desc, fn)
}
