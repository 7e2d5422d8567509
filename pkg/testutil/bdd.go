package testutil

import "testing"

// Given, When and Then name nested subtests so a failure reads as a scenario,
// e.g. "Given_an_asset/When_bob_transfers_it/Then_it_is_forbidden".

func Given(t *testing.T, setup string, fn func(t *testing.T)) bool {
	t.Helper()
	return t.Run("Given "+setup, fn)
}

func When(t *testing.T, action string, fn func(t *testing.T)) bool {
	t.Helper()
	return t.Run("When "+action, fn)
}

func Then(t *testing.T, outcome string, fn func(t *testing.T)) bool {
	t.Helper()
	return t.Run("Then "+outcome, fn)
}
