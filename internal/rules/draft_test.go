package rules

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDraft(t *testing.T) {
	d := NewDraft()
	assert.True(t, d.IsEmpty())
	assert.Equal(t, "0", d.Get(FieldSizeMin))
	assert.Equal(t, "0", d.Get(FieldSizeMax))

	r, err := d.Rule()
	require.NoError(t, err)
	assert.Equal(t, Rule{}, r)
}

func TestDraftSetTextFields(t *testing.T) {
	d := NewDraft()
	for _, f := range []Field{FieldAction, FieldSrcIP, FieldPort, FieldProtocol, FieldStartTime, FieldEndTime} {
		require.NoError(t, d.Set(f, "value-"+string(f)))
		assert.Equal(t, "value-"+string(f), d.Get(f))
	}
	assert.False(t, d.IsEmpty())
}

func TestDraftSetSize(t *testing.T) {
	d := NewDraft()
	require.NoError(t, d.Set(FieldSizeMin, "100"))
	require.NoError(t, d.Set(FieldSizeMax, " 1500 "))
	assert.Equal(t, 100, d.SizeMin())
	assert.Equal(t, 1500, d.SizeMax())

	t.Run("non-integer keeps previous value", func(t *testing.T) {
		err := d.Set(FieldSizeMin, "abc")
		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "size_min", verr.Field)
		assert.Equal(t, "abc", verr.Value)

		assert.Equal(t, 100, d.SizeMin())
		assert.Equal(t, "abc", d.Get(FieldSizeMin))

		_, err = d.Rule()
		require.Error(t, err)
		assert.True(t, errors.As(err, &verr))
	})

	t.Run("empty means zero", func(t *testing.T) {
		require.NoError(t, d.Set(FieldSizeMin, ""))
		assert.Equal(t, 0, d.SizeMin())
		r, err := d.Rule()
		require.NoError(t, err)
		assert.Equal(t, 0, r.SizeMin)
		assert.Equal(t, 1500, r.SizeMax)
	})

	t.Run("float rejected", func(t *testing.T) {
		assert.Error(t, d.Set(FieldSizeMax, "1.5"))
		assert.Equal(t, 1500, d.SizeMax())
	})
}

func TestDraftUnknownField(t *testing.T) {
	d := NewDraft()
	err := d.Set(Field("dst_ip"), "1.2.3.4")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "dst_ip", verr.Field)

	_, err = ParseField("dst_ip")
	assert.Error(t, err)
	f, err := ParseField("src_ip")
	require.NoError(t, err)
	assert.Equal(t, FieldSrcIP, f)
}

func TestDraftFromRule(t *testing.T) {
	r := Rule{
		ID:       "abc",
		Action:   "deny",
		SrcIP:    "10.0.0.1",
		Port:     "22",
		Protocol: "tcp",
		SizeMin:  10,
		SizeMax:  20,
	}
	d := DraftFromRule(r)
	assert.Equal(t, "10", d.Get(FieldSizeMin))
	assert.Equal(t, "20", d.Get(FieldSizeMax))

	out, err := d.Rule()
	require.NoError(t, err)
	assert.True(t, SameContent(r, out))
	assert.Empty(t, out.ID, "drafts never carry server-assigned ids")
}
