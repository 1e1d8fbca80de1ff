package cipher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helperScript = `var Xy={Ab:function(a){a.reverse()},Cd:function(a,b){a.splice(0,b)},Ef:function(a,b){var c=a[0];a[0]=a[b%a.length];a[b%a.length]=c}};
var Zz=function(a){a=a.split("");Xy.Ef(a,3);Xy.Ab(a,45);Xy.Cd(a,2);return a.join("")};`

func TestParseSignatureOps_HelperObject(t *testing.T) {
	ops, err := parseSignatureOps([]byte(helperScript))
	require.NoError(t, err)
	require.Len(t, ops, 3)

	// swap(3): dbcaefghij, reverse: jihgfeacbd, splice(2): hgfeacbd
	assert.Equal(t, "hgfeacbd", applyOps(ops, "abcdefghij"))
}

func TestParseSignatureOps_HelperObjectBracketCalls(t *testing.T) {
	js := `var Xy={Ab:function(a){a.reverse()},Cd:function(a,b){a.splice(0,b)}};
var Zz=function(a){a=a.split("");Xy["Cd"](a,1);Xy.Ab(a,7);return a.join("")};`

	ops, err := parseSignatureOps([]byte(js))
	require.NoError(t, err)
	assert.Equal(t, "edcb", applyOps(ops, "abcde"))
}

func TestParseSignatureOps_Inline(t *testing.T) {
	tests := []struct {
		name string
		js   string
		in   string
		want string
	}{
		{
			name: "reverse splice reverse",
			js:   `var X=function(a){a=a.split("");a.reverse();a.splice(0,2);a.reverse();return a.join("")};`,
			in:   "abcdef",
			want: "abcd",
		},
		{
			name: "swap",
			js:   `function(a){a=a.split("");var c=a[0];a[0]=a[2%a.length];a[2%a.length]=c;return a.join("")}`,
			in:   "abc",
			want: "cba",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ops, err := parseSignatureOps([]byte(tt.js))
			require.NoError(t, err)
			assert.Equal(t, tt.want, applyOps(ops, tt.in))
		})
	}
}

func TestParseSignatureOps_NotFound(t *testing.T) {
	_, err := parseSignatureOps([]byte(`function decipher(s){return s}`))
	require.Error(t, err)
	assert.True(t, IsRegexError(err))
}

func TestOps_Bounds(t *testing.T) {
	assert.Equal(t, "abc", applyOps([]op{spliceOp(10)}, "abc"))
	assert.Equal(t, "", applyOps([]op{spliceOp(3)}, "abc"))
	assert.Equal(t, "bac", applyOps([]op{swapOp(4)}, "abc"))
	assert.Equal(t, "a", applyOps([]op{swapOp(2), reverseOp}, "a"))
}
