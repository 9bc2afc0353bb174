package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCodeMeta_Usable(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.True(t, CodeMeta{Active: true}.Usable(now))
	assert.True(t, CodeMeta{Active: true, ExpiresAt: &future}.Usable(now))
	assert.True(t, CodeMeta{Active: true, ExpiresAt: &now}.Usable(now))
	assert.False(t, CodeMeta{Active: true, ExpiresAt: &past}.Usable(now))
	assert.False(t, CodeMeta{Active: false}.Usable(now))
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "SAVE20", NormalizeCode("  save20 \n"))
}

func TestSessionDiscountState_AttachSupersedes(t *testing.T) {
	state := SessionDiscountState{Code: "PARTNER", Kind: DiscountAffiliate}
	next := state.Attach(BonusCode{CodeMeta: CodeMeta{Code: "SAVE20", Active: true}, DiscountPercent: 20})
	assert.Equal(t, SessionDiscountState{Code: "SAVE20", Kind: DiscountBonus}, next)
}

func TestErrorTaxonomy(t *testing.T) {
	assert.ErrorIs(t, ErrInvalidCode, ErrNotFound)
	assert.ErrorIs(t, ErrReferenceNotFound, ErrNotFound)
	assert.ErrorIs(t, Invalid("code", "required"), ErrValidation)
	assert.ErrorIs(t, Inconsistent("payment %s", "x"), ErrConsistency)

	cause := errors.New("dial tcp: timeout")
	ext := External("gateway", cause)
	assert.ErrorIs(t, ext, ErrExternalService)
	assert.ErrorIs(t, ext, cause)
	var target *ExternalServiceError
	assert.True(t, errors.As(ext, &target))
	assert.Equal(t, "gateway", target.Service)
}
