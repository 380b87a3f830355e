package boot

import "testing"

func TestSelfCheckDoesNotPanicOnCurrentLayout(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("SelfCheck panicked: %v", r)
		}
	}()
	SelfCheck()
}
