package bindcache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/cryguy/tsbridge/internal/registry"
)

// Fingerprint computes a stable digest of a registry's shape: every
// namespace/type/function/value name and kind, walked in a deterministic
// (sorted) order so the same set of registrations always yields the same
// fingerprint regardless of registration order.
func Fingerprint(reg *registry.Registry) string {
	var sb strings.Builder
	writeNamespace(&sb, reg.Global())
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

func writeNamespace(sb *strings.Builder, ns *registry.Namespace) {
	fmt.Fprintf(sb, "ns:%s{\n", ns.Name)

	typeNames := make([]string, 0, len(ns.Types))
	for _, t := range ns.Types {
		typeNames = append(typeNames, t.Name)
	}
	sort.Strings(typeNames)
	for _, n := range typeNames {
		fmt.Fprintf(sb, "type:%s\n", n)
	}

	fnNames := make([]string, 0, len(ns.Functions))
	for _, fn := range ns.Functions {
		fnNames = append(fnNames, fn.Name)
	}
	sort.Strings(fnNames)
	for _, n := range fnNames {
		fmt.Fprintf(sb, "fn:%s\n", n)
	}

	valNames := make([]string, 0, len(ns.Values))
	for _, v := range ns.Values {
		valNames = append(valNames, v.Name)
	}
	sort.Strings(valNames)
	for _, n := range valNames {
		fmt.Fprintf(sb, "val:%s\n", n)
	}

	childNames := make([]string, 0, len(ns.Namespaces))
	childByName := map[string]*registry.Namespace{}
	for _, c := range ns.Namespaces {
		childNames = append(childNames, c.Name)
		childByName[c.Name] = c
	}
	sort.Strings(childNames)
	for _, n := range childNames {
		writeNamespace(sb, childByName[n])
	}

	sb.WriteString("}\n")
}
