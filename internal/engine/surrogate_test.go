package engine

import (
	"reflect"
	"strings"
	"sync"
	"testing"
)

func TestSurrogateDeterminism(t *testing.T) {
	registry, err := NewSurrogateRegistry("secret", "anon", 12)
	if err != nil {
		t.Fatalf("NewSurrogateRegistry: %v", err)
	}

	first := registry.SurrogateFor("PERSON", "Nick")
	second := registry.SurrogateFor("PERSON", "Nick")
	if first != second {
		t.Errorf("same input produced %q and %q", first, second)
	}

	fresh, _ := NewSurrogateRegistry("secret", "anon", 12)
	if got := fresh.SurrogateFor("PERSON", "Nick"); got != first {
		t.Errorf("fresh registry produced %q, want %q", got, first)
	}
}

func TestSurrogateKeyedByLabel(t *testing.T) {
	registry, _ := NewSurrogateRegistry("secret", "anon", 12)
	person := registry.SurrogateFor("PERSON", "Riverton")
	location := registry.SurrogateFor("LOCATION", "Riverton")
	if person == location {
		t.Errorf("different labels must produce different surrogates")
	}
}

func TestSurrogateKeyedBySecret(t *testing.T) {
	a, _ := NewSurrogateRegistry("secret-a", "anon", 12)
	b, _ := NewSurrogateRegistry("secret-b", "anon", 12)
	if a.SurrogateFor("PERSON", "Nick") == b.SurrogateFor("PERSON", "Nick") {
		t.Errorf("different secrets must produce different surrogates")
	}
}

func TestSurrogateNormalization(t *testing.T) {
	registry, _ := NewSurrogateRegistry("secret", "anon", 12)
	base := registry.SurrogateFor("PERSON", "Nick Alderman")
	for _, variant := range []string{"  Nick Alderman ", "Nick  Alderman", "\tNick Alderman\n"} {
		if got := registry.SurrogateFor("PERSON", variant); got != base {
			t.Errorf("variant %q produced %q, want %q", variant, got, base)
		}
	}
}

func TestSurrogateShape(t *testing.T) {
	registry, _ := NewSurrogateRegistry("secret", "tok", 8)
	token := registry.SurrogateFor("EMAIL_ADDRESS", "a@b.com")
	if !strings.HasPrefix(token, "tok_") {
		t.Errorf("token %q missing prefix", token)
	}
	if len(token) != len("tok_")+8 {
		t.Errorf("token %q has wrong length", token)
	}
	for _, r := range token[len("tok_"):] {
		if !strings.ContainsRune("0123456789abcdef", r) {
			t.Errorf("token %q is not lowercase hex after the prefix", token)
		}
	}
}

func TestSurrogateConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		prefix string
		length int
	}{
		{"empty secret", "", "anon", 12},
		{"zero length", "s", "anon", 0},
		{"overlong", "s", "anon", 65},
		{"empty prefix", "s", "", 12},
		{"digit-led prefix", "s", "1anon", 12},
		{"prefix with underscore", "s", "an_on", 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSurrogateRegistry(tt.secret, tt.prefix, tt.length); err == nil {
				t.Errorf("expected error")
			}
		})
	}
}

func TestSurrogateConcurrentAccess(t *testing.T) {
	registry, _ := NewSurrogateRegistry("secret", "anon", 12)
	want := registry.SurrogateFor("PERSON", "Nick")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if got := registry.SurrogateFor("PERSON", "Nick"); got != want {
					t.Errorf("got %q, want %q", got, want)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestSurrogateRegistryRetainsNothing(t *testing.T) {
	registry, _ := NewSurrogateRegistry("secret", "anon", 12)
	before := *registry

	registry.SurrogateFor("PERSON", "Nick Alderman")
	registry.Seed("ADDRESS_STREET", "123 Bay St")

	if !reflect.DeepEqual(before, *registry) {
		t.Errorf("registry state changed after lookups: %+v", *registry)
	}
}

func TestSurrogateMemoMatchesRegistry(t *testing.T) {
	registry, _ := NewSurrogateRegistry("secret", "anon", 12)
	memo := newSurrogateMemo(registry)

	direct := registry.SurrogateFor("PERSON", "Nick")
	if got := memo.surrogateFor("PERSON", "Nick"); got != direct {
		t.Errorf("memoized token %q differs from direct token %q", got, direct)
	}
	if got := memo.surrogateFor("PERSON", " Nick "); got != direct {
		t.Errorf("normalized variants must share one memo entry, got %q", got)
	}
	if len(memo.tokens) != 1 {
		t.Errorf("memo holds %d entries, want 1", len(memo.tokens))
	}
}

func TestSeedStability(t *testing.T) {
	registry, _ := NewSurrogateRegistry("secret", "anon", 12)
	if registry.Seed("ADDRESS_STREET", "123 Bay St") != registry.Seed("ADDRESS_STREET", "123 Bay St") {
		t.Errorf("seed must be stable for equal inputs")
	}
	if registry.Seed("ADDRESS_STREET", "123 Bay St") == registry.Seed("ADDRESS_CITY", "123 Bay St") {
		t.Errorf("seed must vary with the label")
	}
}
