package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZeroValuesAreInvalid(t *testing.T) {
	assert.False(t, InvalidEntity.Valid())
	assert.True(t, EntityHandle(1).Valid())
	assert.False(t, SessionId("").Valid())
	assert.False(t, PlayerId("").Valid())
	assert.False(t, SaveId("").Valid())
	assert.False(t, ZoneId(0).Valid())
	assert.False(t, ItemInstanceId(0).Valid())
	assert.False(t, NpcId(0).Valid())
	assert.False(t, QuestInstanceId(0).Valid())
}

func TestMintedIdsAreUniqueAndValid(t *testing.T) {
	a, b := NewSessionId(), NewSessionId()
	assert.True(t, a.Valid())
	assert.NotEqual(t, a, b)

	s, u := NewSaveId(), NewSaveId()
	assert.True(t, s.Valid())
	assert.NotEqual(t, s, u)
}

func TestNamespaceCheck(t *testing.T) {
	assert.True(t, checkNamespace(EntityHandle(1)))
	assert.True(t, checkNamespace(SessionId("s")))

	type shadowHandle uint32
	assert.False(t, checkNamespace(shadowHandle(1)))
	assert.False(t, checkNamespace(uint32(1)))
	assert.False(t, checkNamespace(nil))
}
