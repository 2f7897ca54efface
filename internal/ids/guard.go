package ids

import "reflect"

// canonicalPkg is the import path every wired identifier type must come from.
// Boot-time wiring passes its identifier values through VerifyNamespace so a
// stray shadow type (a copy-pasted EntityHandle in another package) is caught
// before it silently diverges from the canonical ordering rules.
const canonicalPkg = "github.com/caelmor/world/internal/ids"

var canonicalNames = map[string]bool{
	"EntityHandle":    true,
	"SessionId":       true,
	"PlayerId":        true,
	"SaveId":          true,
	"ZoneId":          true,
	"ItemInstanceId":  true,
	"NpcId":           true,
	"QuestInstanceId": true,
}

// checkNamespace reports whether v is one of the canonical identifier types
// declared in this package.
func checkNamespace(v interface{}) bool {
	t := reflect.TypeOf(v)
	if t == nil {
		return false
	}
	return t.PkgPath() == canonicalPkg && canonicalNames[t.Name()]
}
