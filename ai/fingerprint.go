package ai

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// fingerprintPrefix namespaces orchestrator cache keys inside a shared backend.
const fingerprintPrefix = "ai"

// Fingerprint derives the deterministic cache key of a capability invocation.
//
// The key is the sha256 of the canonical JSON encoding of
// {capability, input, params}. encoding/json sorts map keys at every nesting
// level, so two requests whose params only differ in insertion order produce
// the same fingerprint, while any value change produces a different one.
func Fingerprint(capability Capability, input string, params map[string]any) string {
	payload := struct {
		Capability Capability     `json:"capability"`
		Input      string         `json:"input"`
		Params     map[string]any `json:"params,omitempty"`
	}{
		Capability: capability,
		Input:      input,
		Params:     params,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		// Non-serializable param values should not happen; fmt also renders
		// maps key-sorted, so the fallback stays order-independent.
		data = []byte(fmt.Sprintf("%s|%s|%v", capability, input, params))
	}

	sum := sha256.Sum256(data)
	return fmt.Sprintf("%s:%s:%s", fingerprintPrefix, capability, hex.EncodeToString(sum[:])[:16])
}
