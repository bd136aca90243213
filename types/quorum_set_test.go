package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuorumSetHashIsDeterministic(t *testing.T) {
	qs := &QuorumSet{Threshold: 2, Validators: []string{"v1", "v2", "v3"}}
	assert.Equal(t, qs.Hash(), qs.Hash())

	differentThreshold := &QuorumSet{Threshold: 3, Validators: qs.Validators}
	assert.NotEqual(t, qs.Hash(), differentThreshold.Hash())

	reordered := &QuorumSet{Threshold: 2, Validators: []string{"v2", "v1", "v3"}}
	assert.NotEqual(t, qs.Hash(), reordered.Hash())

	nested := &QuorumSet{Threshold: 1, InnerSets: []QuorumSet{*qs}}
	assert.NotEqual(t, qs.Hash(), nested.Hash())
}

func TestQuorumSetValidateBasic(t *testing.T) {
	valid := &QuorumSet{Threshold: 2, Validators: []string{"v1", "v2", "v3"}}
	require.NoError(t, valid.ValidateBasic())

	zeroThreshold := &QuorumSet{Validators: []string{"v1"}}
	require.Error(t, zeroThreshold.ValidateBasic())

	overThreshold := &QuorumSet{Threshold: 2, Validators: []string{"v1"}}
	require.Error(t, overThreshold.ValidateBasic())

	badInner := &QuorumSet{
		Threshold:  1,
		Validators: []string{"v1"},
		InnerSets:  []QuorumSet{{Threshold: 5, Validators: []string{"v2"}}},
	}
	err := badInner.ValidateBasic()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inner set 0")
}
