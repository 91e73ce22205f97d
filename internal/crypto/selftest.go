package crypto

import (
	"time"

	"github.com/kenneth/fieldcipher/internal/classification"
)

// SelfTestResult reports the outcome of the engine self-test for one tier.
type SelfTestResult struct {
	Classification classification.Classification `json:"classification"`
	Algorithm      string                        `json:"algorithm"`
	Passed         bool                          `json:"passed"`
	Failure        string                        `json:"failure,omitempty"`
	DurationMS     int64                         `json:"duration_ms"`
}

// SelfTestReport aggregates per-tier self-test results.
type SelfTestReport struct {
	Passed  bool             `json:"passed"`
	Results []SelfTestResult `json:"results"`
}

const selfTestValue = "fieldcipher-selftest-probe"

// SelfTest exercises every tier end to end: round-trip, ciphertext
// non-determinism, and tamper rejection. It is the contract the audit layer
// consumes; the report never contains key material.
func (e *Engine) SelfTest() SelfTestReport {
	report := SelfTestReport{Passed: true}
	for _, tier := range classification.All() {
		res := e.selfTestTier(tier)
		if !res.Passed {
			report.Passed = false
		}
		report.Results = append(report.Results, res)
	}
	return report
}

func (e *Engine) selfTestTier(tier classification.Classification) SelfTestResult {
	start := time.Now()
	res := SelfTestResult{Classification: tier}
	fail := func(msg string) SelfTestResult {
		res.Failure = msg
		res.DurationMS = time.Since(start).Milliseconds()
		return res
	}

	env, err := e.Encrypt(selfTestValue, tier)
	if err != nil {
		return fail("encrypt: " + KindOfString(err))
	}
	res.Algorithm = env.Algorithm

	if tier.RequiresIntegrityHash() && env.IntegrityHash == "" {
		return fail("integrity hash missing for high tier")
	}

	dec := e.Decrypt(env)
	if !dec.Success || dec.Plaintext != selfTestValue {
		return fail("round-trip mismatch")
	}

	env2, err := e.Encrypt(selfTestValue, tier)
	if err != nil {
		return fail("second encrypt: " + KindOfString(err))
	}
	if env.Ciphertext == env2.Ciphertext || env.Nonce == env2.Nonce || env.Salt == env2.Salt {
		return fail("ciphertext is deterministic")
	}

	// Tamper with one hex character of the tag; decryption must fail.
	tampered := *env
	tampered.Tag = flipHexChar(tampered.Tag)
	if out := e.Decrypt(&tampered); out.Success {
		return fail("tampered tag accepted")
	}

	res.Passed = true
	res.DurationMS = time.Since(start).Milliseconds()
	return res
}

// KindOfString is KindOf rendered for reports.
func KindOfString(err error) string {
	var kind ErrorKind
	if err != nil {
		kind = KindOf(err)
	}
	return string(kind)
}

func flipHexChar(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] == '0' {
		b[0] = '1'
	} else {
		b[0] = '0'
	}
	return string(b)
}
