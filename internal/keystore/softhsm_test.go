package keystore

import (
	"crypto"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSoftHSM_GenerateFindSignRemove(t *testing.T) {
	hsm := NewSoftHSM()
	require.NoError(t, hsm.Initialize())
	defer hsm.Finalize()

	locator, err := hsm.Generate("repo1", dns.ED25519, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, locator)

	h, err := hsm.FindByLocator(locator)
	require.NoError(t, err)

	sig, err := hsm.Sign(h, []byte("hello"), crypto.Hash(0))
	require.NoError(t, err)
	assert.NotEmpty(t, sig)

	require.NoError(t, hsm.Remove(h))
	_, err = hsm.FindByLocator(locator)
	assert.Error(t, err)
	var kerr *Error
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, NotFound, kerr.Kind)
}

func TestSoftHSM_RandomBytes(t *testing.T) {
	hsm := NewSoftHSM()
	b, err := hsm.RandomBytes(16)
	require.NoError(t, err)
	assert.Len(t, b, 16)
}
