package catalog

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCard(t *testing.T) {
	t.Run("creates card with valid inputs", func(t *testing.T) {
		card, err := NewCard("  Black Lotus ", Tags{Game: "mtg", Set: "LEA"})
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, card.ID)
		assert.Equal(t, "Black Lotus", card.Name)
		assert.Equal(t, "LEA", card.Tags.Set)
		assert.Empty(t, card.RemoteProducts)
	})

	t.Run("fails with empty name", func(t *testing.T) {
		_, err := NewCard("   ", Tags{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot be empty")
	})

	t.Run("fails with name too long", func(t *testing.T) {
		_, err := NewCard(strings.Repeat("x", 256), Tags{})
		require.Error(t, err)
	})
}

func TestTags_Values(t *testing.T) {
	tags := Tags{Game: "mtg", Set: "", Rarity: "rare", CollectorNumber: "232", Extra: []string{" reserved ", ""}}
	assert.Equal(t, []string{"mtg", "rare", "232", "reserved"}, tags.Values())
}

func TestCard_RemoteProductRefs(t *testing.T) {
	card, err := NewCard("Black Lotus", Tags{})
	require.NoError(t, err)

	storeA := uuid.New()
	storeB := uuid.New()

	assert.Empty(t, card.RemoteProductID(storeA, "STOREFRONT"))

	card.SetRemoteProductID(storeA, "STOREFRONT", "gid://Product/1")
	card.SetRemoteProductID(storeB, "STOREFRONT", "gid://Product/2")
	card.SetRemoteProductID(storeA, "AUCTION", "grp-1")

	assert.Equal(t, "gid://Product/1", card.RemoteProductID(storeA, "STOREFRONT"))
	assert.Equal(t, "gid://Product/2", card.RemoteProductID(storeB, "STOREFRONT"))
	assert.Equal(t, "grp-1", card.RemoteProductID(storeA, "AUCTION"))

	t.Run("overwrites existing ref in place", func(t *testing.T) {
		card.SetRemoteProductID(storeA, "STOREFRONT", "gid://Product/9")
		assert.Equal(t, "gid://Product/9", card.RemoteProductID(storeA, "STOREFRONT"))
		assert.Len(t, card.RemoteProducts, 3)
	})

	t.Run("clear only touches one channel", func(t *testing.T) {
		card.ClearRemoteProductID(storeA, "STOREFRONT")
		assert.Empty(t, card.RemoteProductID(storeA, "STOREFRONT"))
		assert.Equal(t, "gid://Product/2", card.RemoteProductID(storeB, "STOREFRONT"))
		assert.Len(t, card.RemoteProducts, 2)
	})

	t.Run("setting empty id clears", func(t *testing.T) {
		card.SetRemoteProductID(storeA, "AUCTION", "")
		assert.Empty(t, card.RemoteProductID(storeA, "AUCTION"))
	})
}
