//go:build caelmor_debug

package ids

import "fmt"

// VerifyNamespace panics when v is not a canonical identifier type. Debug
// builds only; the release build elides the check entirely.
func VerifyNamespace(v interface{}) {
	if !checkNamespace(v) {
		panic(fmt.Sprintf("ids: non-canonical identifier type %T wired into the core", v))
	}
}
