package auth

import (
	"context"
	"testing"
)

func TestWithContext_FromContext(t *testing.T) {
	authCtx := &AuthContext{ViaBearer: true}

	ctx := WithContext(context.Background(), authCtx)

	got := FromContext(ctx)
	if got == nil {
		t.Fatal("FromContext() returned nil")
	}
	if !got.ViaBearer {
		t.Errorf("FromContext().ViaBearer = false, want true")
	}
}

func TestFromContext_NoAuth(t *testing.T) {
	ctx := context.Background()

	got := FromContext(ctx)
	if got != nil {
		t.Error("FromContext() should return nil for context without auth")
	}
}

func TestFromContext_WrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), authContextKey, "not-auth-context")

	got := FromContext(ctx)
	if got != nil {
		t.Error("FromContext() should return nil for wrong type")
	}
}

func TestAuthContext_Authenticated(t *testing.T) {
	cases := []struct {
		name string
		ctx  *AuthContext
		want bool
	}{
		{"nil", nil, false},
		{"neither", &AuthContext{}, false},
		{"bearer", &AuthContext{ViaBearer: true}, true},
		{"loopback", &AuthContext{ViaLoopback: true}, true},
	}
	for _, c := range cases {
		if got := c.ctx.Authenticated(); got != c.want {
			t.Errorf("%s: Authenticated() = %v, want %v", c.name, got, c.want)
		}
	}
}
