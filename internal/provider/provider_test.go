package provider

import (
	"context"
	"errors"
	"testing"
)

type countingHandle struct {
	released *int
	relErr   error
}

func (h countingHandle) Release() error {
	*h.released++
	return h.relErr
}

func TestUse_Absent(t *testing.T) {
	called := false
	ok, err := Use(context.Background(), Absent[countingHandle](), func(countingHandle) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("Use: %v", err)
	}
	if ok {
		t.Error("acquired = true, want false for absent provider")
	}
	if called {
		t.Error("fn must not be called when provider is absent")
	}
}

func TestUse_NilProvider(t *testing.T) {
	ok, err := Use[countingHandle](context.Background(), nil, func(countingHandle) error { return nil })
	if ok || err != nil {
		t.Errorf("Use(nil) = %v, %v; want false, nil", ok, err)
	}
}

func TestUse_ReleasesOnAllPaths(t *testing.T) {
	tests := []struct {
		name    string
		fnErr   error
		relErr  error
		wantErr error
	}{
		{"success", nil, nil, nil},
		{"fn error", errors.New("boom"), nil, errors.New("boom")},
		{"release error", nil, errors.New("close failed"), errors.New("close failed")},
		{"fn error wins over release error", errors.New("boom"), errors.New("close failed"), errors.New("boom")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			released := 0
			p := Func[countingHandle](func(context.Context) (countingHandle, bool) {
				return countingHandle{released: &released, relErr: tc.relErr}, true
			})
			ok, err := Use(context.Background(), p, func(countingHandle) error { return tc.fnErr })
			if !ok {
				t.Fatal("acquired = false, want true")
			}
			if released != 1 {
				t.Errorf("released %d times, want 1", released)
			}
			if (err == nil) != (tc.wantErr == nil) || (err != nil && err.Error() != tc.wantErr.Error()) {
				t.Errorf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestReachable(t *testing.T) {
	released := 0
	up := Func[countingHandle](func(context.Context) (countingHandle, bool) {
		return countingHandle{released: &released}, true
	})
	if !Reachable[countingHandle](context.Background(), up) {
		t.Error("Reachable(up) = false, want true")
	}
	if released != 1 {
		t.Errorf("released %d times, want 1", released)
	}
	if Reachable(context.Background(), Absent[countingHandle]()) {
		t.Error("Reachable(absent) = true, want false")
	}
}
