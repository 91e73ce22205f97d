package crypto

import (
	"testing"

	"github.com/kenneth/fieldcipher/internal/classification"
	"github.com/kenneth/fieldcipher/internal/masterkey"
)

func TestSelfTestPasses(t *testing.T) {
	engine := testEngine(t)

	report := engine.SelfTest()
	if !report.Passed {
		t.Fatalf("SelfTest() failed: %+v", report.Results)
	}
	if len(report.Results) != len(classification.All()) {
		t.Fatalf("results count = %d, want %d", len(report.Results), len(classification.All()))
	}

	for i, res := range report.Results {
		if res.Classification != classification.All()[i] {
			t.Errorf("result %d classification = %s, want %s", i, res.Classification, classification.All()[i])
		}
		if !res.Passed {
			t.Errorf("tier %s failed: %s", res.Classification, res.Failure)
		}
		if res.Algorithm == "" {
			t.Errorf("tier %s result missing algorithm", res.Classification)
		}
	}
}

// failingProvider reports a healthy key until it is flipped, simulating a key
// source that disappears after startup.
type failingProvider struct {
	key  []byte
	fail bool
}

func (p *failingProvider) Key() ([]byte, error) {
	if p.fail {
		return nil, masterkey.ErrMissing
	}
	return p.key, nil
}

func TestSelfTestReportsFailure(t *testing.T) {
	provider := &failingProvider{key: []byte("0123456789abcdef0123456789abcdef")}
	engine, err := NewEngineWithRegistry(provider, testRegistry(t))
	if err != nil {
		t.Fatalf("NewEngineWithRegistry() failed: %v", err)
	}

	provider.fail = true
	report := engine.SelfTest()
	if report.Passed {
		t.Fatal("SelfTest() passed without a master key")
	}
	for _, res := range report.Results {
		if res.Passed {
			t.Errorf("tier %s passed without a master key", res.Classification)
		}
		if res.Failure == "" {
			t.Errorf("tier %s failure reason is empty", res.Classification)
		}
	}
}

func TestFlipHexChar(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"0abc", "1abc"},
		{"1abc", "0abc"},
		{"fabc", "0abc"},
	}
	for _, tt := range tests {
		if got := flipHexChar(tt.in); got != tt.want {
			t.Errorf("flipHexChar(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
