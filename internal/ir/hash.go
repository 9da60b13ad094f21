package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed fingerprints.
// Version suffix enables future algorithm migration.
const (
	DomainPlan       = "modplan/plan/v1"
	DomainDefinition = "modplan/definition/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint computes a stable hash of a canonical description.
// Identical descriptions always produce identical fingerprints, so a change log
// entry can be tied to the exact compiled plan that wrote it.
func Fingerprint(domain string, description map[string]any) (string, error) {
	canonical, err := MarshalCanonical(description)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", domain, err)
	}
	return hashWithDomain(domain, canonical), nil
}

// DefinitionHash fingerprints a content type definition.
func DefinitionHash(ct *ContentType) (string, error) {
	return Fingerprint(DomainDefinition, describeFieldSet(ct.Root))
}

func describeFieldSet(fs *FieldSet) map[string]any {
	if fs == nil {
		return map[string]any{}
	}
	fields := make([]any, 0, len(fs.Fields))
	for _, f := range fs.Fields {
		fields = append(fields, map[string]any{
			"name":   f.Name,
			"column": f.Column,
			"kind":   string(f.Kind),
		})
	}
	children := make([]any, 0, len(fs.Children))
	for _, c := range fs.Children {
		children = append(children, describeFieldSet(c))
	}
	return map[string]any{
		"name":     fs.Name,
		"shape":    fs.Shape.String(),
		"table":    fs.Table,
		"mapping":  fs.Mapping,
		"fields":   fields,
		"children": children,
	}
}
