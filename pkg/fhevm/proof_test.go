package fhevm

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeInputProof_Layout(t *testing.T) {
	handles := []common.Hash{common.HexToHash("0x01"), common.HexToHash("0x02")}
	sig := make65()

	proof, err := EncodeInputProof(handles, [][]byte{sig}, []byte{0x00})
	require.NoError(t, err)

	require.Len(t, proof, 2+2*32+65+1)
	assert.Equal(t, byte(2), proof[0])
	assert.Equal(t, byte(1), proof[1])
	assert.Equal(t, handles[0].Bytes(), proof[2:34])
	assert.Equal(t, handles[1].Bytes(), proof[34:66])
	assert.Equal(t, sig, proof[66:131])
	assert.Equal(t, byte(0x00), proof[131])
}

func TestEncodeDecryptionProof_Layout(t *testing.T) {
	proof, err := EncodeDecryptionProof([][]byte{make65(), make65()}, nil)
	require.NoError(t, err)
	assert.Len(t, proof, 1+2*65)
	assert.Equal(t, byte(2), proof[0])
}

func TestClearValues_RoundTrip(t *testing.T) {
	values := []*big.Int{big.NewInt(12), big.NewInt(0), new(big.Int).SetUint64(^uint64(0))}

	encoded, err := EncodeClearValues(values)
	require.NoError(t, err)
	assert.Len(t, encoded, 3*32)

	decoded, err := DecodeClearValues(encoded, 3)
	require.NoError(t, err)
	for i := range values {
		assert.Zero(t, values[i].Cmp(decoded[i]))
	}

	_, err = DecodeClearValues(encoded[:40], 3)
	assert.Error(t, err)
}
