package cronkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashAndVerify(t *testing.T) {
	digest, err := HashKey("super-secret-cron-key")
	assert.Nil(t, err)
	assert.NotEqual(t, "super-secret-cron-key", digest)
	assert.True(t, VerifyKey(digest, "super-secret-cron-key"))
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	digest, err := HashKey("super-secret-cron-key")
	assert.Nil(t, err)
	assert.False(t, VerifyKey(digest, "guessed-key"))
	assert.False(t, VerifyKey(digest, ""))
}

func TestVerifyRejectsGarbageDigest(t *testing.T) {
	assert.False(t, VerifyKey("not-a-bcrypt-digest", "anything"))
}
