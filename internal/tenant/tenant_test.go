package tenant

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atlas-auth/internal/model"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "simple", raw: "tenant_1", want: "tenant_1"},
		{name: "single letter", raw: "A", want: "A"},
		{name: "max length", raw: "a" + strings.Repeat("b", 62), want: "a" + strings.Repeat("b", 62)},
		{name: "empty falls back", raw: "", want: "public"},
		{name: "whitespace falls back", raw: "  ", want: "public"},
		{name: "leading digit", raw: "1tenant", wantErr: true},
		{name: "statement separator", raw: "tenant;drop", wantErr: true},
		{name: "too long", raw: "a" + strings.Repeat("b", 63), wantErr: true},
		{name: "quote", raw: `ten"ant`, wantErr: true},
		{name: "hyphen", raw: "tenant-1", wantErr: true},
		{name: "leading underscore", raw: "_tenant", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ns, err := Parse(tt.raw, "public")
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, model.ErrInvalidTenant)
				assert.True(t, ns.IsZero())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ns.String())
		})
	}
}

func TestParse_InvalidFallback(t *testing.T) {
	t.Parallel()

	_, err := Parse("", "bad;fallback")
	assert.ErrorIs(t, err, model.ErrInvalidTenant)
}

func TestNamespace_Quoted(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `"tenant_1"`, MustParse("tenant_1").Quoted())
	assert.Panics(t, func() { MustParse("1bad") })
}

func TestIsSystem(t *testing.T) {
	t.Parallel()

	assert.True(t, IsSystem("public"))
	assert.True(t, IsSystem("pg_temp_3"))
	assert.True(t, IsSystem("information_schema"))
	assert.False(t, IsSystem("acme"))
}

func TestContext(t *testing.T) {
	t.Parallel()

	_, ok := FromContext(context.Background())
	assert.False(t, ok)
	assert.Equal(t, "", NameFromContext(context.Background()))

	ctx := WithNamespace(context.Background(), MustParse("acme"))
	ns, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "acme", ns.String())
	assert.Equal(t, "acme", NameFromContext(ctx))
}
