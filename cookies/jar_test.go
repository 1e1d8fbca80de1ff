package cookies

import (
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/ytstreams/errs"
)

func TestBuildJar_InjectsConsentOnce(t *testing.T) {
	tests := []struct {
		name    string
		records []Record
	}{
		{name: "empty", records: []Record{}},
		{name: "without SOCS", records: []Record{{Name: "A", Value: "1"}, {Name: "B", Value: "2"}}},
		{name: "with SOCS", records: []Record{{Name: "SOCS", Value: "CAESEwgDEgk", Domain: ".youtube.com"}}},
		{name: "SOCS on two domains", records: []Record{
			{Name: "SOCS", Value: "X", Domain: ".youtube.com"},
			{Name: "A", Value: "1"},
			{Name: "SOCS", Value: "Y", Domain: "m.youtube.com"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jar, err := BuildJar(tt.records)
			require.NoError(t, err)
			assert.Equal(t, 1, jar.Count("SOCS"))

			again, err := BuildJar(jar.Records())
			require.NoError(t, err)
			assert.Equal(t, 1, again.Count("SOCS"))
		})
	}
}

func TestBuildJar_KeepsUpstreamConsentValue(t *testing.T) {
	jar, err := BuildJar([]Record{{Name: "SOCS", Value: "custom"}})
	require.NoError(t, err)
	assert.Equal(t, "SOCS=custom", jar.Header())
}

func TestBuildJar_LastConsentWins(t *testing.T) {
	jar, err := BuildJar([]Record{
		{Name: "SOCS", Value: "X", Domain: ".youtube.com"},
		{Name: "A", Value: "1"},
		{Name: "SOCS", Value: "Y", Domain: "m.youtube.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "SOCS=Y; A=1", jar.Header())
}

func TestBuildJar_HeaderOrder(t *testing.T) {
	jar, err := BuildJar([]Record{{Name: "A", Value: "1"}})
	require.NoError(t, err)
	assert.Equal(t, "A=1; SOCS=CAI", jar.Header())
}

func TestBuildJar_NilIsInvalidInput(t *testing.T) {
	_, err := BuildJar(nil)
	if !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestBuildJar_Normalization(t *testing.T) {
	past := ExpiresAt(time.Now().Add(-time.Hour))
	future := ExpiresAt(time.Now().Add(time.Hour))

	jar, err := BuildJar([]Record{
		{Name: "UPPER", Value: "x", Domain: "  .YouTube.COM "},
		{Name: "NODOMAIN", Value: "y"},
		{Name: "IDN", Value: "z", Domain: "bücher.example"},
		{Name: "", Value: "ignored"},
		{Name: "OLD", Value: "gone", Domain: ".youtube.com", ExpirationDate: past},
		{Name: "NEW", Value: "kept", Domain: ".youtube.com", ExpirationDate: future, SameSite: "no_restriction"},
		{Name: "STRICT", Value: "s", SameSite: "Strict"},
	})
	require.NoError(t, err)

	byName := map[string]Record{}
	for _, r := range jar.Records() {
		byName[r.Name] = r
	}
	assert.Equal(t, ".youtube.com", byName["UPPER"].Domain)
	assert.Equal(t, ".youtube.com", byName["NODOMAIN"].Domain)
	assert.Equal(t, ".xn--bcher-kva.example", byName["IDN"].Domain)
	assert.Equal(t, SameSiteNone, byName["NEW"].SameSite)
	assert.Equal(t, SameSiteStrict, byName["STRICT"].SameSite)
	assert.True(t, byName["UPPER"].Session)
	assert.NotContains(t, byName, "")

	assert.NotContains(t, jar.Header(), "OLD=gone")
	assert.Contains(t, jar.Header(), "NEW=kept")
}

func TestBuildJar_DuplicateReplacesInPlace(t *testing.T) {
	jar, err := BuildJar([]Record{
		{Name: "A", Value: "1", Domain: ".youtube.com"},
		{Name: "B", Value: "2", Domain: ".youtube.com"},
		{Name: "A", Value: "3", Domain: "youtube.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "A=3; B=2; SOCS=CAI", jar.Header())
	assert.Equal(t, 3, jar.Len())
}

func TestJar_CookiesForOrigin(t *testing.T) {
	jar, err := BuildJar([]Record{{Name: "A", Value: "1", Domain: ".youtube.com"}})
	require.NoError(t, err)

	u, _ := url.Parse("https://m.youtube.com/watch?v=abc")
	got := map[string]string{}
	for _, c := range jar.Cookies(u) {
		got[c.Name] = c.Value
	}
	assert.Equal(t, map[string]string{"A": "1", "SOCS": "CAI"}, got)
}

func TestJar_SetCookies(t *testing.T) {
	jar, err := BuildJar([]Record{})
	require.NoError(t, err)

	u, _ := url.Parse("http://127.0.0.1:8080/")
	jar.SetCookies(u, []*http.Cookie{{Name: "VISITOR", Value: "v1"}})
	assert.Equal(t, "SOCS=CAI; VISITOR=v1", jar.Header())
	require.Len(t, jar.Cookies(u), 1)

	jar.SetCookies(u, []*http.Cookie{{Name: "VISITOR", Value: "", MaxAge: -1}})
	assert.Equal(t, "SOCS=CAI", jar.Header())
	assert.Empty(t, jar.Cookies(u))
}

func TestSameSiteNormalize(t *testing.T) {
	tests := map[SameSite]SameSite{
		"strict":         SameSiteStrict,
		"LAX":            SameSiteLax,
		"none":           SameSiteNone,
		"no_restriction": SameSiteNone,
		"unspecified":    SameSiteNone,
		"":               SameSiteNone,
		"bogus":          SameSiteNone,
	}
	for in, want := range tests {
		if got := in.Normalize(); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRecordExpires(t *testing.T) {
	v := 1700000000.5
	r := Record{ExpirationDate: &v}
	assert.Equal(t, int64(1700000000), r.Expires().Unix())
	assert.True(t, Record{}.Expires().IsZero())
}
