package manifest

import "strings"

// ToPackagePath converts a dependency name to a class package path.
// "my-lib" -> "my_lib", "Acme.Tools" -> "acme/tools"
func ToPackagePath(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '-':
			b.WriteRune('_')
		case r == '.':
			b.WriteRune('/')
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "/")
}

// reservedPackages lists package roots owned by the bootstrap loader.
var reservedPackages = map[string]bool{
	"java":    true,
	"javax":   true,
	"javelin": true,
}

// IsReservedPackage reports whether pkg falls under a package root that
// only the bootstrap loader may define. Only the root segment is checked:
// "acme/java" is fine because the root is "acme".
func IsReservedPackage(pkg string) bool {
	root := pkg
	if idx := strings.IndexByte(pkg, '/'); idx >= 0 {
		root = pkg[:idx]
	}
	return reservedPackages[root]
}
